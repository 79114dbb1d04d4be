package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/go-playground/validator/v10"
)

const maxJSONBody = 8 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", "error", err)
	}
}

// writeError はエラーの種類を HTTP ステータスと利用者向けメッセージに変換します。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	msg := domain.UserMessage(err)
	switch kind {
	case "bad_request", "unauthorized":
		msg = err.Error()
	}
	if status >= 500 {
		slog.ErrorContext(r.Context(), "リクエストの処理に失敗しました", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.WarnContext(r.Context(), "リクエストを拒否しました", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func classify(err error) (int, string) {
	var (
		valErr   validator.ValidationErrors
		genErr   *domain.GenerationError
		toErr    *domain.TimeoutError
		quotaErr *domain.QuotaExceededError
		permErr  *domain.PermissionError
		upErr    *domain.UploadError
		authErr  *domain.AuthDomainError
	)
	switch {
	case errors.Is(err, errBadRequest), errors.As(err, &valErr):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errMissingToken), errors.Is(err, errInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.As(err, &authErr):
		return http.StatusForbidden, "auth_domain"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrPleaseWait):
		return http.StatusConflict, "please_wait"
	case errors.Is(err, domain.ErrPanelBusy):
		return http.StatusConflict, "panel_busy"
	case errors.As(err, &quotaErr):
		return http.StatusTooManyRequests, "quota"
	case errors.As(err, &toErr):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &permErr):
		return http.StatusForbidden, "permission"
	case errors.As(err, &upErr):
		return http.StatusBadGateway, "upload"
	case errors.As(err, &genErr):
		return http.StatusBadGateway, "generation"
	}
	return http.StatusInternalServerError, "internal"
}

// decodeJSON はボディを v に読み込みます。壊れた JSON は errBadRequest。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
