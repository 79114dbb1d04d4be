package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"google.golang.org/genai"
)

var (
	quotaMarkers      = []string{"resource exhausted", "resource_exhausted", "quota", "rate limit"}
	permissionMarkers = []string{"permission denied", "permission_denied", "not enabled", "does not have access", "not authorized"}
)

// callWithTimeout は fn を締め切り付きで実行します。
// fn がコンテキストを無視して戻らなくても、締め切りで必ず制御を返すのだ。
func callWithTimeout[T any](ctx context.Context, op string, limit time.Duration, fn func(context.Context) (T, error)) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(tctx)
		ch <- result{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && isOwnDeadline(ctx, tctx) {
			return zero, &domain.TimeoutError{Op: op, Limit: limit}
		}
		return r.v, r.err
	case <-tctx.Done():
		if isOwnDeadline(ctx, tctx) {
			return zero, &domain.TimeoutError{Op: op, Limit: limit}
		}
		return zero, ctx.Err()
	}
}

// isOwnDeadline は子コンテキストの締め切りで止まったのか（呼び出し元のキャンセルではなく）を判定します。
func isOwnDeadline(parent, child context.Context) bool {
	return errors.Is(child.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

// classify はモデル呼び出しのエラーをドメインのエラー分類に変換します。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		toErr    *domain.TimeoutError
		quotaErr *domain.QuotaExceededError
		permErr  *domain.PermissionError
		genErr   *domain.GenerationError
	)
	if errors.As(err, &toErr) || errors.As(err, &quotaErr) || errors.As(err, &permErr) || errors.As(err, &genErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := apiStatusCode(err)
	msg := strings.ToLower(err.Error())
	switch {
	case code == http.StatusTooManyRequests || containsAny(msg, quotaMarkers):
		return &domain.QuotaExceededError{Op: op, Err: err}
	case code == http.StatusForbidden || containsAny(msg, permissionMarkers):
		return &domain.PermissionError{Op: op, Err: err}
	}
	return &domain.GenerationError{Op: op, Reason: "model call failed", Err: err}
}

func apiStatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
