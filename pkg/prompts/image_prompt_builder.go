package prompts

import (
	"fmt"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
)

// SceneInput は画像・動画プロンプトの材料です。
type SceneInput struct {
	Action          string
	Character       *domain.Character
	CharacterVisual string // 外見解析の結果。失敗時は bio が入っている
	Location        *domain.Location
}

// ImagePromptBuilder は、キャラクターとロケーションを考慮して生成プロンプトを構築します。
type ImagePromptBuilder struct {
	styleSuffix string
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
func NewImagePromptBuilder(styleSuffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{styleSuffix: strings.TrimSpace(styleSuffix)}
}

// BuildImagePrompt は 画風 + キャラクター + シーン + ロケーション の順で1本のプロンプトにします。
func (pb *ImagePromptBuilder) BuildImagePrompt(in SceneInput) string {
	var sb strings.Builder
	sb.WriteString(StylePreamble)
	if pb.styleSuffix != "" {
		sb.WriteString(fmt.Sprintf("\n- STYLE_DNA: %s", pb.styleSuffix))
	}
	sb.WriteString("\n\n")

	if block := pb.characterBlock(in); block != "" {
		sb.WriteString(block)
		sb.WriteString("\n")
	}

	sb.WriteString("### SCENE ACTION ###\n")
	sb.WriteString(strings.TrimSpace(in.Action))
	sb.WriteString("\n\n")

	if in.Location != nil {
		if block := BuildLocationBlock(in.Location.Name, in.Location.PromptContext()); block != "" {
			sb.WriteString(block)
			sb.WriteString("\n")
		}
	}

	sb.WriteString(CinematicTags)
	return sb.String()
}

// BuildVideoPrompt は動画生成用の1段落のプロンプトを返します。
// 動画モデルは長い構造化プロンプトを嫌うので、要素を文章でつなぐのだ。
func (pb *ImagePromptBuilder) BuildVideoPrompt(in SceneInput) string {
	parts := []string{VideoPreamble}
	if in.Character != nil {
		who := in.Character.Name
		if v := strings.TrimSpace(in.CharacterVisual); v != "" {
			who = fmt.Sprintf("%s (%s)", who, v)
		}
		parts = append(parts, "Main character: "+who+".")
	}
	parts = append(parts, "Action: "+strings.TrimSpace(in.Action)+".")
	if in.Location != nil {
		if ctx := strings.TrimSpace(in.Location.PromptContext()); ctx != "" {
			parts = append(parts, "Setting: "+ctx+".")
		}
	}
	if pb.styleSuffix != "" {
		parts = append(parts, "Style: "+pb.styleSuffix+".")
	}
	return strings.Join(parts, " ")
}

func (pb *ImagePromptBuilder) characterBlock(in SceneInput) string {
	if in.Character == nil {
		return ""
	}
	return BuildCharacterBlock(in.Character.Name, in.CharacterVisual)
}
