package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// ProjectMode はプロジェクトの出力形式です。
type ProjectMode string

const (
	ModeStatic ProjectMode = "static"
	ModeVideo  ProjectMode = "video"
)

// Project はユーザーが編集する漫画プロジェクト全体を保持します。
type Project struct {
	ID                   string      `json:"id" validate:"required"`
	Title                string      `json:"title"`
	Summary              string      `json:"summary,omitempty"`
	Mode                 ProjectMode `json:"mode" validate:"omitempty,oneof=static video"`
	CreatedAt            int64       `json:"createdAt"`
	UpdatedAt            int64       `json:"updatedAt,omitempty"`
	Panels               []Panel     `json:"panels" validate:"dive"`
	SelectedCharacterIDs []string    `json:"selectedCharacterIds,omitempty"`
	SceneDescription     string      `json:"sceneDescription,omitempty"`
	Mood                 string      `json:"mood,omitempty"`
	SelectedLocationID   string      `json:"selectedLocationId,omitempty"`
}

// Panel はストーリーボードの1コマです。
// 各 URL は永続 URL か、アップロード中のローカルプレビュー（data: / blob:）のどちらかなのだ。
type Panel struct {
	ID                string `json:"id" validate:"required"`
	Description       string `json:"description"`
	Dialogue          string `json:"dialogue"`
	CharacterID       string `json:"characterId,omitempty"`
	ImageURL          string `json:"imageUrl,omitempty"`
	VideoURL          string `json:"videoUrl,omitempty"`
	AudioURL          string `json:"audioUrl,omitempty"`
	IsGeneratingImage bool   `json:"isGeneratingImage"`
	IsGeneratingVideo bool   `json:"isGeneratingVideo"`
	IsGeneratingAudio bool   `json:"isGeneratingAudio"`
}

// Panels はパネルのスライスに補助メソッドを生やすための型です。
type Panels []Panel

// ScriptPanel は台本生成の結果1件分です。CharacterID は解決できた場合のみ入ります。
type ScriptPanel struct {
	Description string `json:"description"`
	Dialogue    string `json:"dialogue"`
	CharacterID string `json:"characterId,omitempty"`
}

// PanelPatch はパネルへの部分更新です。nil のフィールドは変更しません。
type PanelPatch struct {
	Description *string `json:"description,omitempty"`
	Dialogue    *string `json:"dialogue,omitempty"`
	CharacterID *string `json:"characterId,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
	VideoURL    *string `json:"videoUrl,omitempty"`
	AudioURL    *string `json:"audioUrl,omitempty"`
}

// NowMillis は epoch ミリ秒を返します。
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewPanelID は時刻ベースの ID にランダムな接尾辞を付けて衝突を避けるのだ。
func NewPanelID() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "panel-" + strconv.FormatInt(NowMillis(), 36) + "-" + hex.EncodeToString(b[:])
}

// NewPanel は台本の1件から新しいパネルを作ります。
func NewPanel(sp ScriptPanel) Panel {
	return Panel{
		ID:          NewPanelID(),
		Description: sp.Description,
		Dialogue:    sp.Dialogue,
		CharacterID: sp.CharacterID,
	}
}
