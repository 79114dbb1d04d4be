package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/onbrandapp/stryp-comic-studio/pkg/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

type ctxKey int

const userIDKey ctxKey = iota

// Authenticator はベアラートークン (HS256, sub = ユーザー ID) とオリジンを検証します。
type Authenticator struct {
	secret  []byte
	origins map[string]bool
}

// NewAuthenticator は Authenticator を作ります。origins が空ならオリジンは検査しない。
func NewAuthenticator(secret string, origins []string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT シークレットは必須です")
	}
	a := &Authenticator{secret: []byte(secret), origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		a.origins[strings.TrimSuffix(o, "/")] = true
	}
	return a, nil
}

// CheckOrigin は Origin ヘッダが許可リストにあるかを返します。ヘッダ無しは同一オリジン扱い。
func (a *Authenticator) CheckOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.origins) == 0 || a.origins[origin] {
		return nil
	}
	return &domain.AuthDomainError{Origin: origin}
}

// Authenticate はリクエストからユーザー ID を取り出します。
// WebSocket はヘッダを付けられないので access_token クエリも受け付けるのだ。
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if err := a.CheckOrigin(r); err != nil {
		return "", err
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		raw = r.URL.Query().Get("access_token")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject is empty", errInvalidToken)
	}
	return claims.Subject, nil
}

// IssueToken は sub にユーザー ID を入れたトークンを発行します。CLI とテストで使う。
func (a *Authenticator) IssueToken(userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}
	return s, nil
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID は認証済みリクエストのユーザー ID です。
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}
