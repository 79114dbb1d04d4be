package domain

// JobState はパネル単位のジョブ状態です。
type JobState string

const (
	JobIdle            JobState = "idle"
	JobGeneratingImage JobState = "generating-image"
	JobGeneratingAudio JobState = "generating-audio"
	JobGeneratingVideo JobState = "generating-video"
	JobUploading       JobState = "uploading"
)

// 進捗表示用のステータス文言。どの段階で止まったかを見分けられるようにするのだ。
const (
	StatusPreparing  = "Preparing…"
	StatusGenerating = "Generating…"
	StatusUploading  = "Uploading…"
)

// GeneratingState は生成物の種類に対応する生成中状態を返します。
func GeneratingState(kind MediaKind) JobState {
	switch kind {
	case MediaImage:
		return JobGeneratingImage
	case MediaAudio:
		return JobGeneratingAudio
	case MediaVideo:
		return JobGeneratingVideo
	}
	return JobIdle
}

// BatchKind は一括生成の種類です。画像と動画は visuals にまとめるのだ。
type BatchKind string

const (
	BatchVisuals BatchKind = "visuals"
	BatchAudio   BatchKind = "audio"
)

// BatchKindFor は生成物の種類が属する一括生成の種類を返します。
func BatchKindFor(kind MediaKind) BatchKind {
	if kind == MediaAudio {
		return BatchAudio
	}
	return BatchVisuals
}

// VisualKind はプロジェクトの出力形式に対応する映像の種類です。
func VisualKind(mode ProjectMode) MediaKind {
	if mode == ModeVideo {
		return MediaVideo
	}
	return MediaImage
}
