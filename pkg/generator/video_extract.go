package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"

	"google.golang.org/genai"
)

// ErrVideoURIOnly は動画がバイト列ではなく URI でだけ返されたことを示します。未対応のケースなのだ。
var ErrVideoURIOnly = errors.New("video returned as URI only")

const defaultVideoMime = "video/mp4"

// videoPath はバイト列と MIME タイプの候補パスの組です。
type videoPath struct {
	bytes string
	mime  string
}

// 完了した操作の応答は呼び出し経路によって入れ子の深さが違う。上から順に試すのだ。
var videoByteCandidates = []videoPath{
	{"response.generatedVideos.0.video.videoBytes", "response.generatedVideos.0.video.mimeType"},
	{"response.generateVideoResponse.generatedSamples.0.video.bytesBase64Encoded", "response.generateVideoResponse.generatedSamples.0.video.mimeType"},
	{"response.generatedSamples.0.video.bytesBase64Encoded", "response.generatedSamples.0.video.mimeType"},
	{"response.videos.0.bytesBase64Encoded", "response.videos.0.mimeType"},
	{"result.generatedVideos.0.video.videoBytes", "result.generatedVideos.0.video.mimeType"},
	{"generatedVideos.0.video.videoBytes", "generatedVideos.0.video.mimeType"},
}

var videoURICandidates = []string{
	"response.generatedVideos.0.video.uri",
	"response.generateVideoResponse.generatedSamples.0.video.uri",
	"response.generatedSamples.0.video.uri",
	"response.videos.0.gcsUri",
	"result.generatedVideos.0.video.uri",
	"generatedVideos.0.video.uri",
}

var filteredReasonCandidates = []string{
	"response.raiMediaFilteredReasons.0",
	"response.generateVideoResponse.raiMediaFilteredReasons.0",
}

// ExtractVideoFromOperation は完了した動画生成操作から動画データを取り出します。
func ExtractVideoFromOperation(op *genai.GenerateVideosOperation) (*VideoPayload, error) {
	if op == nil {
		return nil, &domain.GenerationError{Op: "video", Reason: "no video data"}
	}
	if len(op.Error) > 0 {
		return nil, &domain.GenerationError{Op: "video", Reason: operationErrorMessage(op.Error)}
	}

	// 型付きのフィールドに入っていればそれを使う
	if r := op.Response; r != nil && len(r.GeneratedVideos) > 0 && r.GeneratedVideos[0] != nil && r.GeneratedVideos[0].Video != nil {
		if v := r.GeneratedVideos[0].Video; len(v.VideoBytes) > 0 {
			mimeType := v.MIMEType
			if mimeType == "" {
				mimeType = defaultVideoMime
			}
			return &VideoPayload{MimeType: mimeType, Data: v.VideoBytes}, nil
		}
	}

	raw, err := json.Marshal(op)
	if err != nil {
		return nil, &domain.GenerationError{Op: "video", Reason: "malformed operation", Err: err}
	}
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &domain.GenerationError{Op: "video", Reason: "malformed operation", Err: err}
	}
	return ExtractVideo(envelope)
}

// ExtractVideo は緩く型付けされた応答エンベロープから動画のバイト列を探します。
// 候補パスを順に試し、URI しか無ければ未対応エラー、何も無ければ "no video data" なのだ。
func ExtractVideo(envelope map[string]any) (*VideoPayload, error) {
	if msg, ok := lookupString(envelope, "error.message"); ok && msg != "" {
		return nil, &domain.GenerationError{Op: "video", Reason: msg}
	}

	for _, cand := range videoByteCandidates {
		encoded, ok := lookupString(envelope, cand.bytes)
		if !ok || encoded == "" {
			continue
		}
		data, err := media.DecodeBase64(encoded)
		if err != nil {
			return nil, &domain.GenerationError{Op: "video", Reason: "malformed video bytes", Err: err}
		}
		mimeType, _ := lookupString(envelope, cand.mime)
		if mimeType == "" {
			mimeType = defaultVideoMime
		}
		return &VideoPayload{MimeType: mimeType, Data: data}, nil
	}

	for _, p := range videoURICandidates {
		if uri, ok := lookupString(envelope, p); ok && uri != "" {
			return nil, &domain.GenerationError{
				Op:     "video",
				Reason: fmt.Sprintf("unsupported: video is only available at %s", uri),
				Err:    ErrVideoURIOnly,
			}
		}
	}

	for _, p := range filteredReasonCandidates {
		if reason, ok := lookupString(envelope, p); ok && reason != "" {
			return nil, &domain.GenerationError{Op: "video", Reason: "no video data: " + reason}
		}
	}
	return nil, &domain.GenerationError{Op: "video", Reason: "no video data"}
}

// lookup はドット区切りのパスで map / slice を辿ります。数字のセグメントは添字なのだ。
func lookup(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func lookupString(v any, path string) (string, bool) {
	found, ok := lookup(v, path)
	if !ok {
		return "", false
	}
	s, ok := found.(string)
	return s, ok
}

func operationErrorMessage(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("operation failed: %v", e)
}
