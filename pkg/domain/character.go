package domain

import (
	"fmt"
	"strings"
)

// Character はキャラクター保管庫に登録された登場人物です。
type Character struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Bio       string `json:"bio"`
	ImageURL  string `json:"imageUrl" validate:"required"`
	ImageURL2 string `json:"imageUrl2,omitempty"`
	VoiceID   string `json:"voiceId,omitempty" validate:"omitempty,voice"`
}

// CharactersMap は ID をキーにした検索用マップなのだ。
type CharactersMap map[string]Character

// String はキャラクターの情報を文字列で返すのだ。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// ReferenceURLs は外見解析に使う参照画像を優先順に返します。
func (c Character) ReferenceURLs() []string {
	urls := make([]string, 0, 2)
	if c.ImageURL != "" {
		urls = append(urls, c.ImageURL)
	}
	if c.ImageURL2 != "" {
		urls = append(urls, c.ImageURL2)
	}
	return urls
}

// BuildCharactersMap はスライスを検索しやすいマップに変換するのだ。
func BuildCharactersMap(chars []Character) CharactersMap {
	m := make(CharactersMap, len(chars))
	for _, c := range chars {
		m[c.ID] = c
	}
	return m
}

// FindCharacter は ID からキャラクターを引きます。
// 削除済みキャラクターへの参照は「キャラクターなし」として nil を返すのだ。
func (m CharactersMap) FindCharacter(id string) *Character {
	if m == nil || id == "" {
		return nil
	}
	if c, ok := m[id]; ok {
		res := c
		return &res
	}
	return nil
}

// ResolveCharacterID は名前を大文字小文字を無視した完全一致で ID に解決します。
// 一致しなければ空文字を返す。エラーにはしない。
func ResolveCharacterID(name string, chars []Character) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, c := range chars {
		if strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return c.ID
		}
	}
	return ""
}
