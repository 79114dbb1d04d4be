package prompts

import (
	"fmt"
	"strings"
)

const (
	// StylePreamble は全パネル共通の画風指定です。
	StylePreamble = `### GLOBAL VISUAL STYLE ###
- RENDERING: Cinematic comic panel, sharp clean lineart, vibrant colors, high contrast, dramatic lighting.
- FRAMING: A single panel, 16:9, no borders, no speech bubbles, no text, no watermark.`

	// CinematicTags クオリティ向上のための共通タグ
	CinematicTags = "cinematic composition, high resolution, sharp focus"

	// VideoPreamble は動画生成用の演出指定です。
	VideoPreamble = "A short cinematic motion-comic shot with subtle camera movement and consistent character design."
)

// BuildCharacterBlock は登場キャラクターの外見定義セクションを出力します。
func BuildCharacterBlock(name, visualDescription string) string {
	visualDescription = strings.TrimSpace(visualDescription)
	if name == "" && visualDescription == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### CHARACTER (STRICT IDENTITY) ###\n")
	if name != "" {
		// SUBJECT [名前] の形式で同一人物として固定させるのだ
		sb.WriteString(fmt.Sprintf("- SUBJECT [%s]\n", name))
	}
	if visualDescription != "" {
		sb.WriteString(fmt.Sprintf("- VISUAL_FEATURES: %s\n", visualDescription))
	}
	return sb.String()
}

// BuildLocationBlock は背景ロケーションのセクションを出力します。
func BuildLocationBlock(name, context string) string {
	context = strings.TrimSpace(context)
	if context == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("### LOCATION / BACKGROUND ###\n")
	if name != "" {
		sb.WriteString(fmt.Sprintf("- PLACE [%s]\n", name))
	}
	sb.WriteString(fmt.Sprintf("- SETTING: %s\n", context))
	return sb.String()
}
