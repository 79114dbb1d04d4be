package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/google/uuid"
)

// DocumentStore はドキュメントストアの最小境界です。SQLiteStore が実装します。
type DocumentStore interface {
	Get(ctx context.Context, userID string, coll Collection, id string) ([]byte, error)
	Put(ctx context.Context, userID string, coll Collection, id string, body []byte) error
	Delete(ctx context.Context, userID string, coll Collection, id string) error
	List(ctx context.Context, userID string, coll Collection) ([][]byte, error)
}

// Repository はドメイン型でドキュメントを読み書きします。
// プロジェクトは読み込み時と書き込み時の両方でサニタイズするのだ。
type Repository struct {
	docs DocumentStore
}

// NewRepository は Repository を初期化します。
func NewRepository(docs DocumentStore) (*Repository, error) {
	if docs == nil {
		return nil, fmt.Errorf("DocumentStore は必須です")
	}
	return &Repository{docs: docs}, nil
}

// LoadProject はプロジェクトを読み込みます。
func (r *Repository) LoadProject(ctx context.Context, userID, id string) (*domain.Project, error) {
	p, err := getDoc[domain.Project](ctx, r.docs, userID, CollProjects, id)
	if err != nil {
		return nil, err
	}
	clean := domain.SanitizeProject(*p)
	return &clean, nil
}

// SaveProject はプロジェクト全体を書き込みます（後勝ち）。
func (r *Repository) SaveProject(ctx context.Context, userID string, p domain.Project) error {
	if err := domain.Validate(p); err != nil {
		return err
	}
	clean := domain.SanitizeProject(p)
	now := domain.NowMillis()
	if clean.CreatedAt == 0 {
		clean.CreatedAt = now
	}
	clean.UpdatedAt = now
	if clean.Mode == "" {
		clean.Mode = domain.ModeStatic
	}
	return putDoc(ctx, r.docs, userID, CollProjects, clean.ID, clean)
}

// ListProjects は更新の新しい順にプロジェクトを返します。
func (r *Repository) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	ps, err := listDocs[domain.Project](ctx, r.docs, userID, CollProjects)
	if err != nil {
		return nil, err
	}
	for i := range ps {
		ps[i] = domain.SanitizeProject(ps[i])
	}
	return ps, nil
}

// DeleteProject はプロジェクトのドキュメントだけを削除します。参照していたメディアは残る。
func (r *Repository) DeleteProject(ctx context.Context, userID, id string) error {
	return r.docs.Delete(ctx, userID, CollProjects, id)
}

func (r *Repository) LoadCharacter(ctx context.Context, userID, id string) (*domain.Character, error) {
	return getDoc[domain.Character](ctx, r.docs, userID, CollCharacters, id)
}

func (r *Repository) SaveCharacter(ctx context.Context, userID string, c domain.Character) error {
	if err := domain.Validate(c); err != nil {
		return err
	}
	return putDoc(ctx, r.docs, userID, CollCharacters, c.ID, c)
}

func (r *Repository) ListCharacters(ctx context.Context, userID string) ([]domain.Character, error) {
	return listDocs[domain.Character](ctx, r.docs, userID, CollCharacters)
}

func (r *Repository) DeleteCharacter(ctx context.Context, userID, id string) error {
	return r.docs.Delete(ctx, userID, CollCharacters, id)
}

func (r *Repository) LoadLocation(ctx context.Context, userID, id string) (*domain.Location, error) {
	return getDoc[domain.Location](ctx, r.docs, userID, CollLocations, id)
}

// SaveLocation は ID の無いメディア項目に ID を振ってから保存します。
func (r *Repository) SaveLocation(ctx context.Context, userID string, l domain.Location) error {
	if err := domain.Validate(l); err != nil {
		return err
	}
	media := make([]domain.LocationMedia, len(l.Media))
	copy(media, l.Media)
	for i := range media {
		if media[i].ID == "" {
			media[i].ID = uuid.NewString()
		}
	}
	l.Media = media
	return putDoc(ctx, r.docs, userID, CollLocations, l.ID, l)
}

func (r *Repository) ListLocations(ctx context.Context, userID string) ([]domain.Location, error) {
	return listDocs[domain.Location](ctx, r.docs, userID, CollLocations)
}

func (r *Repository) DeleteLocation(ctx context.Context, userID, id string) error {
	return r.docs.Delete(ctx, userID, CollLocations, id)
}

// LoadSettings は設定を返します。未保存なら既定値なのだ。
func (r *Repository) LoadSettings(ctx context.Context, userID string) (domain.AppSettings, error) {
	s, err := getDoc[domain.AppSettings](ctx, r.docs, userID, CollSettings, settingsDocID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.AppSettings{}, err
	}
	return *s, nil
}

func (r *Repository) SaveSettings(ctx context.Context, userID string, s domain.AppSettings) error {
	if err := domain.Validate(s); err != nil {
		return err
	}
	return putDoc(ctx, r.docs, userID, CollSettings, settingsDocID, s)
}

// Snapshot はコレクションの全ドキュメントを JSON のまま返します。購読の配信に使うのだ。
func (r *Repository) Snapshot(ctx context.Context, userID string, coll Collection) ([]json.RawMessage, error) {
	if coll == CollProjects {
		ps, err := r.ListProjects(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]json.RawMessage, 0, len(ps))
		for _, p := range ps {
			b, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("プロジェクトのエンコードに失敗しました: %w", err)
			}
			out = append(out, b)
		}
		return out, nil
	}

	bodies, err := r.docs.List(ctx, userID, coll)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, json.RawMessage(b))
	}
	return out, nil
}

func getDoc[T any](ctx context.Context, docs DocumentStore, userID string, coll Collection, id string) (*T, error) {
	body, err := docs.Get(ctx, userID, coll, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%s/%s のデコードに失敗しました: %w", coll, id, err)
	}
	return &v, nil
}

func putDoc(ctx context.Context, docs DocumentStore, userID string, coll Collection, id string, v any) error {
	if id == "" {
		return fmt.Errorf("%s の ID は必須です", coll)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s/%s のエンコードに失敗しました: %w", coll, id, err)
	}
	return docs.Put(ctx, userID, coll, id, body)
}

func listDocs[T any](ctx context.Context, docs DocumentStore, userID string, coll Collection) ([]T, error) {
	bodies, err := docs.List(ctx, userID, coll)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(bodies))
	for _, b := range bodies {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("%s のデコードに失敗しました: %w", coll, err)
		}
		out = append(out, v)
	}
	return out, nil
}
