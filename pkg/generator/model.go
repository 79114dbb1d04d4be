package generator

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Model は動画と音声の生成で使う genai との境界です。テストではフェイクに差し替えるのだ。
type Model interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// GenaiModel は google.golang.org/genai のクライアントを Model として包みます。
type GenaiModel struct {
	client *genai.Client
}

// NewGenaiModel は API キーから Gemini API クライアントを初期化します。
func NewGenaiModel(ctx context.Context, apiKey string) (*GenaiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return &GenaiModel{client: client}, nil
}

func (m *GenaiModel) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.client.Models.GenerateContent(ctx, model, contents, config)
}

func (m *GenaiModel) GenerateVideos(ctx context.Context, model, prompt string, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return m.client.Models.GenerateVideos(ctx, model, prompt, nil, config)
}

func (m *GenaiModel) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return m.client.Operations.GetVideosOperation(ctx, op, nil)
}

func textPart(s string) *genai.Part {
	return &genai.Part{Text: s}
}

func blobPart(mimeType string, data []byte) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

func userContent(parts ...*genai.Part) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// permissiveSafety は全カテゴリを BLOCK_NONE にした安全設定です。
func permissiveSafety() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

func candidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// responseText は最初の候補のテキストパートを連結して返します。
func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, p := range candidateParts(resp) {
		if p != nil && p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// firstInlineData は最初のインラインバイナリを返します。
func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	for _, p := range candidateParts(resp) {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return p.InlineData
		}
	}
	return nil
}

// refusalReason はバイナリが返らなかった理由を組み立てるのだ。
func refusalReason(resp *genai.GenerateContentResponse, fallback string) string {
	if text := responseText(resp); text != "" {
		return "model declined: " + text
	}
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Sprintf("prompt blocked: %v", resp.PromptFeedback.BlockReason)
	}
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].FinishReason != "" {
		return fmt.Sprintf("%s (finish reason: %v)", fallback, resp.Candidates[0].FinishReason)
	}
	return fallback
}
