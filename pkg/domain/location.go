package domain

// LocationMediaType はロケーション参照メディアの種類です。
type LocationMediaType string

const (
	LocationImage LocationMediaType = "image"
	LocationVideo LocationMediaType = "video"
)

// LocationMedia はロケーションに紐づく参照メディア1件です。
type LocationMedia struct {
	ID   string            `json:"id"`
	URL  string            `json:"url" validate:"required"`
	Type LocationMediaType `json:"type" validate:"oneof=image video"`
	Name string            `json:"name,omitempty"`
}

// Location は背景として使い回す視覚リファレンスの束です。
type Location struct {
	ID                string          `json:"id" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	Description       string          `json:"description,omitempty"`
	VisualDescription string          `json:"visualDescription,omitempty"`
	Media             []LocationMedia `json:"media,omitempty" validate:"dive"`

	// 旧形式の単一メディア。Media が無い場合は Media[0] として扱う。
	MediaURL  string            `json:"mediaUrl,omitempty"`
	MediaType LocationMediaType `json:"mediaType,omitempty"`
	MediaName string            `json:"mediaName,omitempty"`
}

// Items は参照メディアを返します。Media が空なら旧フィールドから1件を組み立てるのだ。
func (l Location) Items() []LocationMedia {
	if len(l.Media) > 0 {
		return l.Media
	}
	if l.MediaURL == "" {
		return nil
	}
	t := l.MediaType
	if t == "" {
		t = LocationImage
	}
	return []LocationMedia{{
		ID:   l.ID + "-legacy",
		URL:  l.MediaURL,
		Type: t,
		Name: l.MediaName,
	}}
}

// PromptContext は生成プロンプトに差し込むロケーションの説明文です。
// AI 由来の visualDescription を優先し、無ければ手書きのメモを使う。
func (l Location) PromptContext() string {
	if l.VisualDescription != "" {
		return l.VisualDescription
	}
	return l.Description
}
