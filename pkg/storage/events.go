package storage

// Collection はユーザー配下のドキュメント集合です。
type Collection string

const (
	CollProjects   Collection = "projects"
	CollCharacters Collection = "characters"
	CollLocations  Collection = "locations"
	CollSettings   Collection = "settings"
)

// settingsDocID は設定ドキュメントの固定 ID。ユーザーごとに1件なのだ。
const settingsDocID = "default"

// ParseCollection は文字列を既知のコレクションに変換します。
func ParseCollection(s string) (Collection, bool) {
	switch c := Collection(s); c {
	case CollProjects, CollCharacters, CollLocations, CollSettings:
		return c, true
	}
	return "", false
}

// ChangeOp は変更の種類です。
type ChangeOp string

const (
	OpPut    ChangeOp = "put"
	OpDelete ChangeOp = "delete"
)

// ChangeEvent はドキュメントの変更通知です。
// Origin は発生元プロセスの ID で、他プロセスへの中継時に自分宛てのエコーを捨てるのに使う。
type ChangeEvent struct {
	UserID     string     `json:"userId"`
	Collection Collection `json:"collection"`
	ID         string     `json:"id"`
	Op         ChangeOp   `json:"op"`
	Origin     string     `json:"origin,omitempty"`
}
