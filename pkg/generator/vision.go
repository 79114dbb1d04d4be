package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/prompts"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// maxLocationReferences を超えるロケーションメディアは解析に渡さない。
const maxLocationReferences = 3

// AnalyzeCharacter は利用者の明示的な「解析」操作です。失敗はそのまま返すのだ。
func (c *Client) AnalyzeCharacter(ctx context.Context, ch domain.Character) (string, error) {
	desc, err := c.describeCharacter(ctx, ch)
	if err != nil {
		return "", err
	}
	c.descCache.Set(characterCacheKey(ch), desc, cache.DefaultExpiration)
	return desc, nil
}

// AnalyzeLocation はロケーションの参照メディアから背景の説明文を生成します。
func (c *Client) AnalyzeLocation(ctx context.Context, loc domain.Location) (string, error) {
	items := loc.Items()
	if len(items) == 0 {
		return "", &domain.GenerationError{Op: "describe", Reason: "location has no reference media"}
	}
	if len(items) > maxLocationReferences {
		items = items[:maxLocationReferences]
	}
	urls := make([]string, 0, len(items))
	for _, it := range items {
		urls = append(urls, it.URL)
	}

	prompt, err := c.textPrompts.Build(prompts.ModeDescribeLocation, prompts.TemplateData{Name: loc.Name, Notes: loc.Description})
	if err != nil {
		return "", &domain.GenerationError{Op: "describe", Reason: "prompt build failed", Err: err}
	}
	return c.describe(ctx, prompt, urls)
}

// describeForPrompt は画像生成の前段で使う外見記述です。
// 失敗しても bio だけを返して黙って劣化する。結果はキャラクター単位でキャッシュし、
// バッチ中の同時呼び出しは singleflight で1回にまとめるのだ。
func (c *Client) describeForPrompt(ctx context.Context, ch domain.Character) string {
	key := characterCacheKey(ch)
	if v, ok := c.descCache.Get(key); ok {
		return v.(string)
	}

	v, err, _ := c.descGroup.Do(key, func() (interface{}, error) {
		desc, err := c.describeCharacter(ctx, ch)
		if err != nil {
			return nil, err
		}
		c.descCache.Set(key, desc, cache.DefaultExpiration)
		return desc, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "外見解析に失敗したため bio で代用します", "character", ch.ID, "error", err)
		return strings.TrimSpace(ch.Bio)
	}
	return v.(string)
}

func (c *Client) describeCharacter(ctx context.Context, ch domain.Character) (string, error) {
	urls := ch.ReferenceURLs()
	if len(urls) == 0 {
		return "", &domain.GenerationError{Op: "describe", Reason: "character has no reference image"}
	}

	prompt, err := c.textPrompts.Build(prompts.ModeDescribeCharacter, prompts.TemplateData{Name: ch.Name})
	if err != nil {
		return "", &domain.GenerationError{Op: "describe", Reason: "prompt build failed", Err: err}
	}

	desc, err := c.describe(ctx, prompt, urls)
	if err != nil {
		return "", err
	}
	if bio := strings.TrimSpace(ch.Bio); bio != "" {
		desc = fmt.Sprintf("%s\n\nCharacter notes: %s", desc, bio)
	}
	return desc, nil
}

// describe は参照メディアをインラインで添付してビジョンモデルに説明させます。
// 参照は1件ずつ独立に取得し、取れなかったものは飛ばす。
func (c *Client) describe(ctx context.Context, prompt string, urls []string) (string, error) {
	refs, err := c.fetcher.FetchAll(ctx, urls)
	if err != nil {
		return "", &domain.GenerationError{Op: "describe", Reason: "reference media unavailable", Err: err}
	}
	if len(refs) == 0 {
		return "", &domain.GenerationError{Op: "describe", Reason: "reference media unavailable"}
	}

	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		parts = append(parts, blobPart(ref.MimeType, ref.Data))
	}
	parts = append(parts, textPart(prompt))

	resp, err := callWithTimeout(ctx, "describe", c.cfg.VisionTimeout, func(ctx context.Context) (*gemini.Response, error) {
		return c.text.GenerateWithParts(ctx, c.cfg.VisionModel, parts, gemini.GenerateOptions{
			SafetySettings: permissiveSafety(),
		})
	})
	if err != nil {
		return "", classify("describe", err)
	}

	text := geminiText(resp)
	if text == "" {
		return "", &domain.GenerationError{Op: "describe", Reason: refusalReason(geminiRaw(resp), "empty description")}
	}
	return text, nil
}

func characterCacheKey(ch domain.Character) string {
	h := sha256.New()
	for _, s := range []string{ch.ID, ch.ImageURL, ch.ImageURL2, ch.Bio} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return "char:" + hex.EncodeToString(h.Sum(nil))[:16]
}
