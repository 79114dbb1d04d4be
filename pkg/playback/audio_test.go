package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/asset"
	"github.com/onbrandapp/stryp-comic-studio/pkg/media"
)

type fakeAudio map[string][]byte

func (f fakeAudio) Fetch(_ context.Context, url string) (*asset.Reference, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return &asset.Reference{URL: url, MimeType: media.WAVMimeType, Data: data}, nil
}

func TestWAVLength(t *testing.T) {
	// 24kHz モノラル 16bit で 1.5 秒分
	pcm := make([]byte, media.SpeechSampleRate*2*3/2)
	audio := fakeAudio{
		"https://cdn.example/2.wav": media.WrapPCM(pcm),
		"https://cdn.example/x.wav": []byte("not a wav"),
	}
	length := WAVLength(context.Background(), audio)

	t.Run("WAV ヘッダから長さを読むこと", func(t *testing.T) {
		d, ok := length("https://cdn.example/2.wav")
		if !ok || d != 1500*time.Millisecond {
			t.Errorf("期待値 1.5s, 実際の値 %s (%v)", d, ok)
		}
	})

	t.Run("読めない音声は false", func(t *testing.T) {
		if _, ok := length("https://cdn.example/x.wav"); ok {
			t.Error("WAV でないのに長さが返りました")
		}
		if _, ok := length("https://cdn.example/missing.wav"); ok {
			t.Error("取得できないのに長さが返りました")
		}
	})

	t.Run("BuildSteps の表示時間に反映されること", func(t *testing.T) {
		steps := BuildSteps(testPanels(), testChars(), Options{PanelDelay: 2 * time.Second, AudioLength: length})
		if steps[1].DwellMillis != 1500 {
			t.Errorf("期待値 1500, 実際の値 %d", steps[1].DwellMillis)
		}
		if steps[0].DwellMillis != 2000 {
			t.Errorf("期待値 2000, 実際の値 %d", steps[0].DwellMillis)
		}
	})

	t.Run("取得器が無ければ nil", func(t *testing.T) {
		if WAVLength(context.Background(), nil) != nil {
			t.Error("nil を期待しました")
		}
	})
}
