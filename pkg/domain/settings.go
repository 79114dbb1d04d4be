package domain

import "slices"

// DefaultPanelDelay は音声が無いパネルの既定表示時間（ミリ秒）です。
const DefaultPanelDelay = 3000

// AppSettings はユーザーごとに1つだけ存在する設定です。
type AppSettings struct {
	DefaultNarratorVoiceID string `json:"defaultNarratorVoiceId,omitempty" validate:"omitempty,voice"`
	PanelDelay             int    `json:"panelDelay" validate:"gte=0"`
}

// DefaultSettings は未保存ユーザー向けの既定値です。
func DefaultSettings() AppSettings {
	return AppSettings{
		DefaultNarratorVoiceID: Voices[0],
		PanelDelay:             DefaultPanelDelay,
	}
}

// Voices は音声合成で選べるプリビルトボイスの一覧なのだ。
var Voices = []string{
	"Kore",
	"Puck",
	"Charon",
	"Fenrir",
	"Aoede",
	"Leda",
	"Orus",
	"Zephyr",
}

// IsVoice は ID が一覧に含まれるかを返します。
func IsVoice(id string) bool {
	return slices.Contains(Voices, id)
}

// ResolveVoice はキャラクターのボイス、設定のナレーター、一覧の先頭の順でボイスを決めます。
func ResolveVoice(c *Character, s AppSettings) string {
	if c != nil && IsVoice(c.VoiceID) {
		return c.VoiceID
	}
	if IsVoice(s.DefaultNarratorVoiceID) {
		return s.DefaultNarratorVoiceID
	}
	return Voices[0]
}
