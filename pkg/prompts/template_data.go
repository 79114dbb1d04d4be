package prompts

import (
	_ "embed"
)

const (
	ModeScript            = "script"
	ModeDescribeCharacter = "describe_character"
	ModeDescribeLocation  = "describe_location"
)

// CastMember は台本プロンプトに渡す登場人物です。
type CastMember struct {
	Name string
	Bio  string
}

// TemplateData はテキストプロンプトのテンプレートに渡すデータ構造です。
type TemplateData struct {
	SceneDescription string
	Mood             string
	PriorContext     string
	Cast             []CastMember
	Name             string
	Notes            string
}

var (
	//go:embed script.md
	ScriptPrompt string
	//go:embed describe_character.md
	DescribeCharacterPrompt string
	//go:embed describe_location.md
	DescribeLocationPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModeScript:            ScriptPrompt,
	ModeDescribeCharacter: DescribeCharacterPrompt,
	ModeDescribeLocation:  DescribeLocationPrompt,
}
