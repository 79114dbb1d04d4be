package publisher

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"
	"github.com/onbrandapp/stryp-comic-studio/pkg/playback"
)

//go:embed templates/player.html.tmpl
var playerTemplate string

var tmpl = template.Must(template.New("player").Parse(playerTemplate))

const (
	dataOpenTag  = `<script id="studio-data" type="application/json">`
	dataCloseTag = `</script>`
	defaultLang  = "en"
)

// ExportData はプレイヤーに埋め込む JSON です。
type ExportData struct {
	Title      string             `json:"title"`
	Mode       domain.ProjectMode `json:"mode"`
	PanelDelay int                `json:"panelDelay"`
	Panels     []domain.Panel     `json:"panels"`
	Characters []ExportCharacter  `json:"characters"`
}

// ExportCharacter は字幕の話者表示に必要な分だけのキャラクター情報です。
type ExportCharacter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SpeakerClass string `json:"speakerClass"`
	Hue          int    `json:"-"`
}

// BuildExport は埋め込み用のデータを組み立てます。
// ローカルプレビューは書き出さない。キャラクターは ID 順に並べて出力を固定するのだ。
func BuildExport(p domain.Project, chars []domain.Character, s domain.AppSettings) ExportData {
	clean := domain.SanitizeProject(p)
	panels := clean.Panels
	if panels == nil {
		panels = []domain.Panel{}
	}

	delay := s.PanelDelay
	if delay <= 0 {
		delay = domain.DefaultPanelDelay
	}

	out := make([]ExportCharacter, 0, len(chars))
	for _, c := range chars {
		class, hue := speakerStyle(c.Name)
		out = append(out, ExportCharacter{ID: c.ID, Name: c.Name, SpeakerClass: class, Hue: hue})
	}
	slices.SortFunc(out, func(a, b ExportCharacter) int { return strings.Compare(a.ID, b.ID) })

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Untitled"
	}

	return ExportData{
		Title:      title,
		Mode:       clean.Mode,
		PanelDelay: delay,
		Panels:     panels,
		Characters: out,
	}
}

// Steps は埋め込みデータをプレイヤーと同じ再生順の Step 列にします。
func (d ExportData) Steps() []playback.Step {
	chars := make([]domain.Character, 0, len(d.Characters))
	for _, c := range d.Characters {
		chars = append(chars, domain.Character{ID: c.ID, Name: c.Name})
	}
	return playback.BuildSteps(d.Panels, domain.BuildCharactersMap(chars), playback.OptionsFromSettings(domain.AppSettings{PanelDelay: d.PanelDelay}))
}

// ExportHTML は単体で動く HTML プレイヤーを書き出します。入力が同じなら出力はバイト単位で同じ。
func ExportHTML(w io.Writer, p domain.Project, chars []domain.Character, s domain.AppSettings) error {
	data := BuildExport(p, chars, s)

	// json.Marshal は < > & をエスケープするので </script> が紛れ込むことはない
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("エクスポートデータの変換に失敗しました: %w", err)
	}

	view := struct {
		Lang       string
		Title      string
		Characters []ExportCharacter
		DataJSON   string
	}{
		Lang:       defaultLang,
		Title:      data.Title,
		Characters: data.Characters,
		DataJSON:   string(raw),
	}
	if err := tmpl.Execute(w, view); err != nil {
		return fmt.Errorf("HTML の生成に失敗しました: %w", err)
	}
	return nil
}

// ParseExport は書き出した HTML から埋め込みデータを取り出します。
func ParseExport(r io.Reader) (*ExportData, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("HTML の読み込みに失敗しました: %w", err)
	}
	_, rest, ok := bytes.Cut(b, []byte(dataOpenTag))
	if !ok {
		return nil, fmt.Errorf("埋め込みデータが見つかりません")
	}
	body, _, ok := bytes.Cut(rest, []byte(dataCloseTag))
	if !ok {
		return nil, fmt.Errorf("埋め込みデータが閉じられていません")
	}

	var data ExportData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("埋め込みデータの解析に失敗しました: %w", err)
	}
	return &data, nil
}

// speakerStyle は話者名から CSS で安全なクラス名と色相を作ります。
// 日本語名などのマルチバイト文字でもハッシュ化するので問題ないのだ。
func speakerStyle(name string) (string, int) {
	sum := sha256.Sum256([]byte(name))
	hue := int(binary.BigEndian.Uint16(sum[:2]) % 360)
	return "speaker-" + hex.EncodeToString(sum[:])[:10], hue
}
