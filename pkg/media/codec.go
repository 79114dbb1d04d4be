// Package media は base64、バイナリ、data URI の相互変換と、
// 生 PCM を再生可能な WAV にするためのヘッダ合成を提供します。
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrNotDataURI は入力が data URI ではないことを示します。
var ErrNotDataURI = errors.New("not a data URI")

// EncodeBase64 はバイナリを標準 base64 文字列にします。
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 は base64 文字列をバイナリに戻します。
// 改行や空白が混ざったペイロードや、パディング無しの入力も受け付けるのだ。
func DecodeBase64(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, s)

	if data, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
	if err != nil {
		return nil, fmt.Errorf("base64 のデコードに失敗しました: %w", err)
	}
	return data, nil
}

// DataURI はバイナリを data URI に包みます。
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + EncodeBase64(data)
}

// ParseDataURI は data URI を MIME タイプとバイナリに分解します。
func ParseDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URI にペイロードがありません: %w", ErrNotDataURI)
	}

	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "text/plain"
	}
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}

	data, err := DecodeBase64(payload)
	if err != nil {
		return "", nil, err
	}
	return mimeType, data, nil
}

// ToBinary は生の base64 文字列か data URI を受け取り、バイナリと MIME タイプを返します。
// MIME タイプが分からない場合は fallbackMime を使うのだ。
func ToBinary(payload, fallbackMime string) ([]byte, string, error) {
	if strings.HasPrefix(payload, "data:") {
		mimeType, data, err := ParseDataURI(payload)
		if err != nil {
			return nil, "", err
		}
		return data, mimeType, nil
	}
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, "", err
	}
	return data, fallbackMime, nil
}

// ExtensionFor は MIME タイプに対応する拡張子を返します。
func ExtensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "text/html":
		return ".html"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
