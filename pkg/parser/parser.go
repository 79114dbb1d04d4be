package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyScript はモデルの応答にパネルが1件も無いことを示します。
var ErrEmptyScript = errors.New("script has no panels")

// ScriptItem はモデルが返す台本の1コマです。characterName は任意なのだ。
type ScriptItem struct {
	Description   string `json:"description"`
	Dialogue      string `json:"dialogue"`
	CharacterName string `json:"characterName,omitempty"`
}

// ParseScript は、AIが返したテキストからコードブロック等を除去して台本としてパースするのだ。
// 配列そのもの、または {"panels": [...]} の形を受け付ける。
func ParseScript(raw string) ([]ScriptItem, error) {
	rawJSON := CleanJSON(raw)
	if rawJSON == "" {
		return nil, ErrEmptyScript
	}

	var items []ScriptItem
	if strings.HasPrefix(rawJSON, "{") {
		var wrapped struct {
			Panels []ScriptItem `json:"panels"`
		}
		if err := json.Unmarshal([]byte(rawJSON), &wrapped); err != nil {
			return nil, fmt.Errorf("JSONのパースに失敗したのだ: %w", err)
		}
		items = wrapped.Panels
	} else if err := json.Unmarshal([]byte(rawJSON), &items); err != nil {
		return nil, fmt.Errorf("JSONのパースに失敗したのだ: %w", err)
	}

	// description も dialogue も空の行は使えないので落とす
	out := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.Description) == "" && strings.TrimSpace(it.Dialogue) == "" {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, ErrEmptyScript
	}
	return out, nil
}

// CleanJSON は余計な空白や、AIが付けがちなMarkdownタグ (```json ... ```) を取り除くのだ。
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := FenceRegex.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimSpace(s)
}
