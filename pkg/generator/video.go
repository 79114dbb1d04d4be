package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/prompts"

	"google.golang.org/genai"
)

// VideoPayload は動画生成の結果です。
type VideoPayload struct {
	MimeType string
	Data     []byte
}

// GenerateVideo は長時間ジョブとして動画を生成します。
// 操作ハンドルを受け取ったら一定間隔でポーリングし、上限を超えたら TimeoutError なのだ。
func (c *Client) GenerateVideo(ctx context.Context, description string, character *domain.Character, location *domain.Location) (*VideoPayload, error) {
	in := prompts.SceneInput{
		Action:    description,
		Character: character,
		Location:  location,
	}
	if character != nil {
		in.CharacterVisual = c.describeForPrompt(ctx, *character)
	}
	prompt := c.imagePrompts.BuildVideoPrompt(in)

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VideoTimeout)
	defer cancel()

	slog.InfoContext(ctx, "動画生成ジョブを投入します", "model", c.cfg.VideoModel, "ceiling", c.cfg.VideoTimeout)

	op, err := c.model.GenerateVideos(vctx, c.cfg.VideoModel, prompt, &genai.GenerateVideosConfig{
		AspectRatio: "16:9",
	})
	if err != nil {
		return nil, c.videoErr(ctx, vctx, err)
	}
	if op == nil {
		return nil, &domain.GenerationError{Op: "video", Reason: "no operation handle"}
	}

	ticker := time.NewTicker(c.cfg.VideoPollInterval)
	defer ticker.Stop()

	for polls := 1; !op.Done; polls++ {
		select {
		case <-vctx.Done():
			return nil, c.videoErr(ctx, vctx, vctx.Err())
		case <-ticker.C:
		}

		next, err := c.model.GetVideosOperation(vctx, op)
		if err != nil {
			return nil, c.videoErr(ctx, vctx, err)
		}
		if next != nil {
			op = next
		}
		slog.DebugContext(ctx, "動画生成ジョブをポーリングしました", "operation", op.Name, "polls", polls, "done", op.Done)
	}

	return ExtractVideoFromOperation(op)
}

// videoErr はポーリング上限による停止を TimeoutError に読み替えます。
func (c *Client) videoErr(parent, vctx context.Context, err error) error {
	if isOwnDeadline(parent, vctx) || (errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil) {
		return &domain.TimeoutError{Op: "video", Limit: c.cfg.VideoTimeout}
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	return classify("video", err)
}
