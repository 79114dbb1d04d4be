package prompts

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// PromptBuilder はテキスト生成に渡すプロンプトを組み立てます。
type PromptBuilder interface {
	Build(mode string, data TemplateData) (string, error)
}

// TextPromptBuilder は埋め込みテンプレートをモード別に保持します。
type TextPromptBuilder struct {
	templates map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	// oneline は改行を潰して1行にするのだ。利用者の入力をリスト項目に入れるときに使う
	"oneline": func(s string) string { return strings.Join(strings.Fields(s), " ") },
}

// NewTextPromptBuilder はすべてのテンプレートを起動時に解析します。
func NewTextPromptBuilder() (*TextPromptBuilder, error) {
	modes := make([]string, 0, len(allTemplates))
	for mode := range allTemplates {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	b := &TextPromptBuilder{templates: make(map[string]*template.Template, len(modes))}
	for _, mode := range modes {
		src := allTemplates[mode]
		if strings.TrimSpace(src) == "" {
			return nil, fmt.Errorf("テンプレート %s が空です", mode)
		}
		tmpl, err := template.New(mode).Funcs(templateFuncs).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s の解析に失敗しました: %w", mode, err)
		}
		b.templates[mode] = tmpl
	}
	return b, nil
}

// Build はモードのテンプレートを data で展開します。
func (b *TextPromptBuilder) Build(mode string, data TemplateData) (string, error) {
	tmpl, ok := b.templates[mode]
	if !ok {
		return "", fmt.Errorf("未対応のプロンプトモードです: %q", mode)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプト %s の展開に失敗しました: %w", mode, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
