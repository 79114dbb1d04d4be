package generator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// fakeModel は Gemini API の代わりに任意の応答を返すテスト用モデルなのだ。
type fakeModel struct {
	mu       sync.Mutex
	calls    []fakeCall
	content  func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	videos   func(ctx context.Context, model, prompt string) (*genai.GenerateVideosOperation, error)
	pollOnce func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

type fakeCall struct {
	model    string
	contents []*genai.Content
	cfg      *genai.GenerateContentConfig
}

func (f *fakeModel) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{model: model, contents: contents, cfg: cfg})
	f.mu.Unlock()
	return f.content(ctx, model, contents, cfg)
}

func (f *fakeModel) GenerateVideos(ctx context.Context, model, prompt string, _ *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return f.videos(ctx, model, prompt)
}

func (f *fakeModel) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return f.pollOnce(ctx, op)
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeFetcher は URL ごとに固定の参照を返します。
type fakeFetcher struct {
	refs map[string]*asset.Reference
}

func (f *fakeFetcher) FetchAll(_ context.Context, urls []string) ([]*asset.Reference, error) {
	out := make([]*asset.Reference, 0, len(urls))
	for _, u := range urls {
		if r, ok := f.refs[u]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: s}}},
		}},
	}
}

func blobResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}}},
		}},
	}
}

// fakeGemini は gemini クライアントの代わりです。台本・外見解析・画像生成の呼び出しを記録するのだ。
type fakeGemini struct {
	mu    sync.Mutex
	calls []geminiCall
	text  func(ctx context.Context, model, prompt string) (*gemini.Response, error)
	parts func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

type geminiCall struct {
	model  string
	prompt string
	parts  []*genai.Part
	opts   gemini.GenerateOptions
}

func (f *fakeGemini) IsVertexAI() bool { return false }

func (f *fakeGemini) UploadFile(context.Context, io.Reader, string, string) (string, string, error) {
	return "", "", errors.New("file api is not available in tests")
}

func (f *fakeGemini) DeleteFile(context.Context, string) error { return nil }

func (f *fakeGemini) GetFile(_ context.Context, name string) (*genai.File, error) {
	return &genai.File{Name: name, State: genai.FileStateActive}, nil
}

func (f *fakeGemini) GenerateContent(ctx context.Context, model, prompt string) (*gemini.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, geminiCall{model: model, prompt: prompt})
	f.mu.Unlock()
	return f.text(ctx, model, prompt)
}

func (f *fakeGemini) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, geminiCall{model: model, parts: parts, opts: opts})
	f.mu.Unlock()
	return f.parts(ctx, model, parts, opts)
}

func (f *fakeGemini) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGemini) lastCall() geminiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// lastPrompt は最後の呼び出しで渡したテキストパートを返します。
func (c geminiCall) lastPrompt() string {
	if c.prompt != "" {
		return c.prompt
	}
	for i := len(c.parts) - 1; i >= 0; i-- {
		if c.parts[i] != nil && c.parts[i].Text != "" {
			return c.parts[i].Text
		}
	}
	return ""
}

// fakeDownloader は参照画像の取得を固定のバイト列で返します。
type fakeDownloader struct {
	files map[string][]byte
}

func (d *fakeDownloader) GetStream(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := d.files[url]
	if !ok {
		return nil, errors.New("status 404")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (d *fakeDownloader) FetchStream(ctx context.Context, url string, fn func(io.Reader) error) error {
	rc, err := d.GetStream(ctx, url)
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(rc)
}

type noStorageReader struct{}

func (noStorageReader) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("cloud storage is not available in tests")
}

var rinPNG = append([]byte("\x89PNG\r\n\x1a\n"), "rin"...)

func geminiResponse(raw *genai.GenerateContentResponse) *gemini.Response {
	return &gemini.Response{RawResponse: raw}
}

// imageResponse は画像生成キットが受け付ける完了済みの応答なのだ。
func imageResponse(mimeType string, data []byte) *gemini.Response {
	raw := blobResponse(mimeType, data)
	raw.Candidates[0].FinishReason = genai.FinishReasonStop
	return geminiResponse(raw)
}

func stoppedText(s string) *gemini.Response {
	raw := textResponse(s)
	raw.Candidates[0].FinishReason = genai.FinishReasonStop
	return geminiResponse(raw)
}

func newTestClient(t *testing.T, m *fakeModel, cfg Config) *Client {
	t.Helper()
	return newClientWith(t, &fakeGemini{}, m, cfg)
}

func newGeminiTestClient(t *testing.T, g *fakeGemini, cfg Config) *Client {
	t.Helper()
	return newClientWith(t, g, &fakeModel{}, cfg)
}

func newClientWith(t *testing.T, g *fakeGemini, m *fakeModel, cfg Config) *Client {
	t.Helper()
	f := &fakeFetcher{refs: map[string]*asset.Reference{
		"https://cdn.example/rin.png": {URL: "https://cdn.example/rin.png", MimeType: "image/png", Data: []byte("rin")},
	}}
	img, err := NewImageGenerator(g, noStorageReader{}, &fakeDownloader{files: map[string][]byte{
		"https://cdn.example/rin.png": rinPNG,
	}})
	if err != nil {
		t.Fatalf("画像生成器の初期化に失敗しました: %v", err)
	}
	c, err := New(Backends{Text: g, Image: img, Media: m}, f, cfg)
	if err != nil {
		t.Fatalf("クライアントの初期化に失敗しました: %v", err)
	}
	return c
}
