package session

import "github.com/onbrandapp/stryp-comic-studio/pkg/domain"

// MergePanels はリモートのスナップショットにローカルのプレビューを重ねます。
// 結果の並びと中身はリモートに従う。ただし同じ ID のパネルで、ローカルの値がプレビュー参照
// かつリモートが空か別の値なら、そのメディア欄だけローカルを残すのだ。
// アップロード完了前に届いたスナップショットでプレビューが消えるのを防ぐ。
func MergePanels(local, remote []domain.Panel) []domain.Panel {
	if remote == nil {
		return nil
	}
	byID := make(map[string]domain.Panel, len(local))
	for _, p := range local {
		byID[p.ID] = p
	}

	out := make([]domain.Panel, len(remote))
	for i, r := range remote {
		merged := r
		if l, ok := byID[r.ID]; ok {
			merged.ImageURL = keepPreview(l.ImageURL, r.ImageURL)
			merged.VideoURL = keepPreview(l.VideoURL, r.VideoURL)
			merged.AudioURL = keepPreview(l.AudioURL, r.AudioURL)
		}
		out[i] = merged
	}
	return out
}

func keepPreview(local, remote string) string {
	if domain.IsLocalPreview(local) && local != remote {
		return local
	}
	return remote
}
