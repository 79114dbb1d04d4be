package generator

import (
	"context"
	"errors"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"

	"google.golang.org/genai"
)

// AudioPayload は WAV に包んだ音声です。
type AudioPayload struct {
	MimeType string
	Data     []byte
}

// GenerateSpeech はテキストを 24kHz モノラル 16bit PCM で合成し、WAV ヘッダを付けて返します。
// API キーに音声の権限が無い場合は PermissionError なのだ。
func (c *Client) GenerateSpeech(ctx context.Context, text, voiceID string) (*AudioPayload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.GenerationError{Op: "speech", Reason: "empty text"}
	}
	if !domain.IsVoice(voiceID) {
		voiceID = domain.Voices[0]
	}

	cfg := &genai.GenerateContentConfig{
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceID},
			},
		},
	}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "AUDIO")

	resp, err := callWithTimeout(ctx, "speech", c.cfg.SpeechTimeout, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return c.model.GenerateContent(ctx, c.cfg.SpeechModel, userContent(textPart(text)), cfg)
	})
	if err != nil {
		return nil, classifySpeech(err)
	}

	blob := firstInlineData(resp)
	if blob == nil {
		return nil, &domain.GenerationError{Op: "speech", Reason: refusalReason(resp, "no audio data")}
	}

	// 既にコンテナ付きで返ってきた場合はそのまま使う
	if strings.HasPrefix(strings.ToLower(blob.MIMEType), "audio/wav") || strings.HasPrefix(string(blob.Data), "RIFF") {
		return &AudioPayload{MimeType: media.WAVMimeType, Data: blob.Data}, nil
	}
	return &AudioPayload{MimeType: media.WAVMimeType, Data: media.WrapPCM(blob.Data)}, nil
}

// classifySpeech は音声特有の権限エラー（音声が有効でないキー）を拾ってから通常の分類に回します。
func classifySpeech(err error) error {
	var toErr *domain.TimeoutError
	if errors.As(err, &toErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "audio") && containsAny(msg, []string{"permission", "not enabled", "not supported for this api key", "not allowed"}) {
		return &domain.PermissionError{Op: "speech", Err: err}
	}
	return classify("speech", err)
}
