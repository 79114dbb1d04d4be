package generator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/prompts"

	"github.com/shouni/gemini-image-kit/ports"
)

// maxImageReferences を超える参照画像は画像生成に添付しない。
const maxImageReferences = 3

// GenerateImage はパネル1枚分の画像を生成します。
// 画風 + キャラクター外見 + シーン + ロケーションを1本のプロンプトにまとめ、
// 90秒の締め切りを超えたら TimeoutError を返すのだ。
func (c *Client) GenerateImage(ctx context.Context, description string, character *domain.Character, location *domain.Location) (*ports.ImageResponse, error) {
	in := prompts.SceneInput{
		Action:    description,
		Character: character,
		Location:  location,
	}
	if character != nil {
		in.CharacterVisual = c.describeForPrompt(ctx, *character)
	}

	opts := ports.GenerationOptions{
		Model:       c.cfg.ImageModel,
		Prompt:      c.imagePrompts.BuildImagePrompt(in),
		AspectRatio: c.cfg.AspectRatio,
	}
	refs := imageReferences(character, location)

	slog.InfoContext(ctx, "画像を生成しています", "model", c.cfg.ImageModel, "references", len(refs), "timeout", c.cfg.ImageTimeout)

	resp, err := callWithTimeout(ctx, "image", c.cfg.ImageTimeout, func(ctx context.Context) (*ports.ImageResponse, error) {
		if len(refs) <= 1 {
			req := ports.ImagePanelRequest{GenerationOptions: opts}
			if len(refs) == 1 {
				req.Image = refs[0]
			}
			return c.image.GenerateMangaPanel(ctx, req)
		}
		return c.image.GenerateMangaPage(ctx, ports.ImagePageRequest{GenerationOptions: opts, Images: refs})
	})
	if err != nil {
		return nil, classify("image", err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, &domain.GenerationError{Op: "image", Reason: "no image data"}
	}
	if resp.MimeType == "" {
		resp.MimeType = "image/png"
	}
	return resp, nil
}

// imageReferences は画像生成に添付する参照画像です。
// キャラクターの参照を先に、ロケーションの画像を後に並べる。取得できる URL だけなのだ。
func imageReferences(character *domain.Character, location *domain.Location) []ports.ImageURI {
	var urls []string
	if character != nil {
		urls = append(urls, character.ReferenceURLs()...)
	}
	if location != nil {
		for _, it := range location.Items() {
			if it.Type == domain.LocationImage {
				urls = append(urls, it.URL)
			}
		}
	}

	out := make([]ports.ImageURI, 0, len(urls))
	for _, u := range urls {
		if !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "gs://") {
			continue
		}
		out = append(out, ports.ImageURI{ReferenceURL: u})
		if len(out) == maxImageReferences {
			break
		}
	}
	return out
}
