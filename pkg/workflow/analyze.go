package workflow

import (
	"context"
	"fmt"
)

// AnalyzeCharacter はキャラクターの参照画像から外見の説明文を作ります。
// 結果は生成クライアント側のキャッシュに載り、以後の画像生成の前段で使われるのだ。
func (m *Manager) AnalyzeCharacter(ctx context.Context, userID, characterID string) (string, error) {
	ch, err := m.catalog.LoadCharacter(ctx, userID, characterID)
	if err != nil {
		return "", err
	}
	return m.gen.AnalyzeCharacter(ctx, *ch)
}

// AnalyzeLocation はロケーションの参照メディアを解析し、visualDescription として保存します。
func (m *Manager) AnalyzeLocation(ctx context.Context, userID, locationID string) (string, error) {
	loc, err := m.catalog.LoadLocation(ctx, userID, locationID)
	if err != nil {
		return "", err
	}
	desc, err := m.gen.AnalyzeLocation(ctx, *loc)
	if err != nil {
		return "", err
	}
	loc.VisualDescription = desc
	if err := m.catalog.SaveLocation(ctx, userID, *loc); err != nil {
		return "", fmt.Errorf("ロケーションの保存に失敗しました: %w", err)
	}
	return desc, nil
}
