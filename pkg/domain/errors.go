package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPleaseWait は別種のバッチが実行中のため処理を受け付けられないことを示します。
	ErrPleaseWait = errors.New("another batch is running, please wait")
	// ErrPanelBusy はパネルで既に生成ジョブが進行中であることを示します。
	ErrPanelBusy = errors.New("panel is already generating")
	// ErrNotFound は対象のドキュメントが存在しないことを示します。
	ErrNotFound = errors.New("not found")
)

// GenerationError はモデルの拒否、使えない出力、想定外の応答形式を表します。
type GenerationError struct {
	Op     string
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TimeoutError はジョブが割り当て時間を超えたことを表します。
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Limit)
}

// QuotaExceededError はプロバイダのレート制限・課金上限を表します。
type QuotaExceededError struct {
	Op  string
	Err error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: quota exceeded: %v", e.Op, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

// PermissionError は API キーに必要な権限が無いことを表します。
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: permission denied: %v", e.Op, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// UploadError はローカルプレビュー表示後の永続化失敗を表します。
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AuthDomainError は未登録のオリジンからのサインインを拒否したことを表します。
type AuthDomainError struct {
	Origin string
}

func (e *AuthDomainError) Error() string {
	return fmt.Sprintf("origin %q is not authorized", e.Origin)
}

// UserMessage はエラーの種類に応じた利用者向けメッセージを返します。
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		genErr   *GenerationError
		toErr    *TimeoutError
		quotaErr *QuotaExceededError
		permErr  *PermissionError
		upErr    *UploadError
		authErr  *AuthDomainError
	)
	switch {
	case errors.As(err, &quotaErr):
		return "The generation quota has been reached. Wait a minute and try again, or check your API plan and billing."
	case errors.As(err, &toErr):
		return fmt.Sprintf("Generation took longer than %s and was stopped. Please try again.", toErr.Limit)
	case errors.As(err, &permErr):
		return "Your API key does not have access to this feature (audio generation may not be enabled for the key)."
	case errors.As(err, &upErr):
		return "The result was generated but could not be saved to the cloud. It is kept locally; retry the upload to keep it."
	case errors.As(err, &authErr):
		return "Sign-in was rejected because this site is not registered as an authorized domain."
	case errors.Is(err, ErrPleaseWait):
		return "Another batch is running. Please wait until it finishes."
	case errors.Is(err, ErrPanelBusy):
		return "This panel is already generating. Please wait."
	case errors.Is(err, ErrNotFound):
		return "The requested item was not found."
	case errors.As(err, &genErr):
		return "Generation failed: " + genErr.Reason
	}
	return "Something went wrong: " + err.Error()
}
