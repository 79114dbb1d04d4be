package domain

import (
	"errors"
	"testing"
	"time"
)

func TestResolveCharacterID(t *testing.T) {
	chars := []Character{
		{ID: "rin", Name: "Rin"},
		{ID: "kai", Name: " Kai "},
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"大文字小文字を無視して一致すること", "rIN", "rin"},
		{"前後の空白を無視すること", "kai", "kai"},
		{"部分一致では解決しないこと", "Ri", ""},
		{"未知の名前は空になること", "Unknown", ""},
		{"空の名前は空になること", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveCharacterID(tt.input, chars); got != tt.want {
				t.Errorf("期待値 %q, 実際の値 %q", tt.want, got)
			}
		})
	}
}

func TestCharactersMap_FindCharacter(t *testing.T) {
	m := BuildCharactersMap([]Character{{ID: "rin", Name: "Rin"}})

	if c := m.FindCharacter("rin"); c == nil || c.Name != "Rin" {
		t.Errorf("キャラクターが見つかりません: %+v", c)
	}
	if c := m.FindCharacter("deleted"); c != nil {
		t.Errorf("削除済み参照は nil になるべきです: %+v", c)
	}
}

func TestCharacter_String(t *testing.T) {
	c := Character{ID: "test-id", Name: "テスト名"}
	expected := "テスト名 (test-id)"
	if c.String() != expected {
		t.Errorf("期待値 '%s', 実際の値 '%s'", expected, c.String())
	}
}

func TestLocationItems(t *testing.T) {
	t.Run("旧フィールドが media[0] として扱われること", func(t *testing.T) {
		l := Location{ID: "loc", MediaURL: "https://cdn.example/cave.png", MediaName: "cave"}
		items := l.Items()
		if len(items) != 1 || items[0].URL != l.MediaURL || items[0].Type != LocationImage {
			t.Errorf("想定外の結果です: %+v", items)
		}
	})

	t.Run("media がある場合は旧フィールドを無視すること", func(t *testing.T) {
		l := Location{
			MediaURL: "https://cdn.example/old.png",
			Media:    []LocationMedia{{ID: "m1", URL: "https://cdn.example/new.mp4", Type: LocationVideo}},
		}
		items := l.Items()
		if len(items) != 1 || items[0].ID != "m1" {
			t.Errorf("想定外の結果です: %+v", items)
		}
	})

	t.Run("何も無ければ nil", func(t *testing.T) {
		if items := (Location{}).Items(); items != nil {
			t.Errorf("期待値 nil, 実際の値 %+v", items)
		}
	})
}

func TestResolveVoice(t *testing.T) {
	s := AppSettings{DefaultNarratorVoiceID: "Puck"}

	if got := ResolveVoice(&Character{VoiceID: "Charon"}, s); got != "Charon" {
		t.Errorf("キャラクターのボイスが優先されません: %s", got)
	}
	if got := ResolveVoice(&Character{VoiceID: "nope"}, s); got != "Puck" {
		t.Errorf("ナレーターにフォールバックしません: %s", got)
	}
	if got := ResolveVoice(nil, AppSettings{}); got != Voices[0] {
		t.Errorf("既定のボイスになりません: %s", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Character{ID: "c", Name: "Rin", ImageURL: "https://x/a.png", VoiceID: "Kore"}); err != nil {
		t.Errorf("正常な値でエラーになりました: %v", err)
	}
	if err := Validate(Character{ID: "c", Name: "Rin", ImageURL: "https://x/a.png", VoiceID: "Robot"}); err == nil {
		t.Error("未知のボイスが通りました")
	}
	if err := Validate(Character{ID: "c"}); err == nil {
		t.Error("必須項目の欠落が通りました")
	}
}

func TestUserMessage(t *testing.T) {
	wrapped := errors.Join(errors.New("ctx"), &TimeoutError{Op: "image", Limit: 90 * time.Second})
	if msg := UserMessage(wrapped); msg == "" || msg == UserMessage(errors.New("x")) {
		t.Errorf("タイムアウト用のメッセージになっていません: %s", msg)
	}
	if msg := UserMessage(ErrPleaseWait); msg != "Another batch is running. Please wait until it finishes." {
		t.Errorf("想定外のメッセージです: %s", msg)
	}
}
