// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/authbridge/internal/identity"
	"github.com/hitoshi/authbridge/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// accessTokenContextKey はリクエストコンテキストにアクセストークンを格納するためのキー。
var accessTokenContextKey = contextKey("access_token")

// TokenIntrospector はアクセストークンの検証に必要なインターフェース。
// identity.Clientの部分集合として定義する。
type TokenIntrospector interface {
	GetUser(ctx context.Context, accessToken string) (*model.UserIdentity, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを
// Identity Backendで検証するミドルウェアを返す。
// ヘッダーが欠落・不正な場合はバックエンドを呼ばずに401を返す。
// 検証済みユーザーとアクセストークンをリクエストコンテキストに注入する。
func NewAuthMiddleware(introspector TokenIntrospector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			user, err := introspector.GetUser(r.Context(), token)
			if err != nil {
				var provErr *identity.ProviderError
				if errors.As(err, &provErr) && !provErr.IsRejection() {
					// プロバイダー障害は認証失敗と区別する
					slog.Error("token introspection failed",
						slog.Int("provider_status", provErr.StatusCode),
					)
					WriteErrorResponse(w, http.StatusBadGateway, model.NewProviderError())
					return
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, accessTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.UserIdentity, error) {
	user, ok := ctx.Value(userContextKey).(*model.UserIdentity)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// AccessTokenFromContext はリクエストコンテキストからアクセストークンを取得する。
func AccessTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(accessTokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("access token not found in context")
	}
	return token, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.UserIdentity) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// ContextWithAccessToken はコンテキストにアクセストークンを注入する。
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey, token)
}
