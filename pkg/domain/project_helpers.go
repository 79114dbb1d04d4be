package domain

import (
	"sort"
	"strings"
)

// MediaKind は生成物の種類です。ストレージのパスにもそのまま使います。
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// IsLocalPreview は URL がアップロード前のローカルプレビュー参照かどうかを判定します。
func IsLocalPreview(u string) bool {
	return strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "blob:")
}

// Clone はパネル列を含めた深いコピーを返します。
func (p Project) Clone() Project {
	c := p
	if p.Panels != nil {
		c.Panels = make([]Panel, len(p.Panels))
		copy(c.Panels, p.Panels)
	}
	if p.SelectedCharacterIDs != nil {
		c.SelectedCharacterIDs = make([]string, len(p.SelectedCharacterIDs))
		copy(c.SelectedCharacterIDs, p.SelectedCharacterIDs)
	}
	return c
}

// SanitizeProject は永続化用のコピーを作ります。
// 生成中フラグはすべて false に戻し、ローカルプレビュー参照は落とすのだ。
// リロード後にスピナーが回り続けることはこれで起こらない。
func SanitizeProject(p Project) Project {
	c := p.Clone()
	for i := range c.Panels {
		c.Panels[i] = SanitizePanel(c.Panels[i])
	}
	c.SelectedCharacterIDs = uniqueStrings(c.SelectedCharacterIDs)
	return c
}

// SanitizePanel は1パネル分の永続化用サニタイズです。
func SanitizePanel(p Panel) Panel {
	p.IsGeneratingImage = false
	p.IsGeneratingVideo = false
	p.IsGeneratingAudio = false
	if IsLocalPreview(p.ImageURL) {
		p.ImageURL = ""
	}
	if IsLocalPreview(p.VideoURL) {
		p.VideoURL = ""
	}
	if IsLocalPreview(p.AudioURL) {
		p.AudioURL = ""
	}
	return p
}

// IndexOf は ID に一致するパネルの位置を返します。見つからなければ -1。
func (ps Panels) IndexOf(id string) int {
	for i := range ps {
		if ps[i].ID == id {
			return i
		}
	}
	return -1
}

// UniqueCharacterIDs はパネル群から重複しないキャラクター ID を抽出します。
func (ps Panels) UniqueCharacterIDs() []string {
	set := make(map[string]struct{})
	for _, panel := range ps {
		if panel.CharacterID != "" {
			set[panel.CharacterID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Media は種類に対応する URL を返します。
func (p Panel) Media(kind MediaKind) string {
	switch kind {
	case MediaImage:
		return p.ImageURL
	case MediaVideo:
		return p.VideoURL
	case MediaAudio:
		return p.AudioURL
	}
	return ""
}

// Apply は部分更新を適用したパネルを返します。
func (p Panel) Apply(patch PanelPatch) Panel {
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Dialogue != nil {
		p.Dialogue = *patch.Dialogue
	}
	if patch.CharacterID != nil {
		p.CharacterID = *patch.CharacterID
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.VideoURL != nil {
		p.VideoURL = *patch.VideoURL
	}
	if patch.AudioURL != nil {
		p.AudioURL = *patch.AudioURL
	}
	return p
}

// MediaPatch は指定した種類の URL だけを書き換えるパッチを作ります。
func MediaPatch(kind MediaKind, u string) PanelPatch {
	var patch PanelPatch
	switch kind {
	case MediaImage:
		patch.ImageURL = &u
	case MediaVideo:
		patch.VideoURL = &u
	case MediaAudio:
		patch.AudioURL = &u
	}
	return patch
}

func uniqueStrings(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
