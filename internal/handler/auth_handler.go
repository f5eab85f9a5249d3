// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/authbridge/internal/auth"
	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, fullName string) (*model.UserIdentity, error)
	SignIn(ctx context.Context, cred auth.Credential) (*model.UserIdentity, *model.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider, redirectTo string) string
	EnsureProfile(ctx context.Context, user *model.UserIdentity) error
}

// ExchangeCodeStore はワンタイムコードの発行と引き換えのインターフェース。
type ExchangeCodeStore interface {
	Issue(user *model.UserIdentity, session *model.Session) (string, error)
	Redeem(code string) (*model.UserIdentity, *model.Session)
}

// SignInRecorder はサインインのメトリクス記録に必要なインターフェース。
type SignInRecorder interface {
	RecordSignIn(method string)
	RecordSignInFailure(method string, reason string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL           string // コールバックURL構築用
	MobileRedirectURL string // モバイルアプリのディープリンク
	Cookie            CookieConfig
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	exchange ExchangeCodeStore
	recorder SignInRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, exchange ExchangeCodeStore, recorder SignInRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		exchange: exchange,
		recorder: recorder,
		config:   config,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Register は新規ユーザーを登録する。セッションは発行しない。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディ"))
		return
	}

	user, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "ユーザーを登録しました。",
		"data": userResponse{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はメールアドレスとパスワードでサインインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディ"))
		return
	}

	user, session, err := h.service.SignIn(r.Context(), auth.PasswordCredential{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.recorder.RecordSignInFailure("password", "rejected")
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordSignIn("password")
	writeAuthResponse(w, h.config.Cookie, user, session)
}

type googleSignInRequest struct {
	IDToken string `json:"id_token"`
	Nonce   string `json:"nonce"`
}

// GoogleSignIn はネイティブGoogleサインインのIDトークンでサインインする。
// 初回サインイン時はプロフィール行が自動作成される。
// POST /api/auth/google-signin
func (h *AuthHandler) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req googleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディ"))
		return
	}

	user, session, err := h.service.SignIn(r.Context(), auth.IDTokenCredential{
		Provider: "google",
		IDToken:  req.IDToken,
		Nonce:    req.Nonce,
	})
	if err != nil {
		h.recorder.RecordSignInFailure("id_token", "rejected")
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordSignIn("id_token")
	writeAuthResponse(w, h.config.Cookie, user, session)
}

// OAuthStart はOAuthプロバイダーの同意画面へリダイレクトする。
// GET /api/auth/oauth/{provider}
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !isSupportedProvider(provider) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("provider"))
		return
	}

	callbackURL := h.config.BaseURL + "/api/auth/callback"
	http.Redirect(w, r, h.service.AuthorizeURL(provider, callbackURL), http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// 認可コードをセッションに交換し、プロフィールを保証したうえで、
// トークンそのものではなくワンタイムコードを付けてモバイルアプリへ
// ディープリンクリダイレクトする。
// GET /api/auth/callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingCodeError())
		return
	}

	user, session, err := h.service.SignIn(r.Context(), auth.AuthCodeCredential{Code: code})
	if err != nil {
		h.recorder.RecordSignInFailure("auth_code", "rejected")
		handleServiceError(w, err)
		return
	}

	if err := h.service.EnsureProfile(r.Context(), user); err != nil {
		slog.Error("failed to ensure profile on oauth callback",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		h.recorder.RecordSignInFailure("auth_code", "profile")
		handleServiceError(w, err)
		return
	}

	exchangeCode, err := h.exchange.Issue(user, session)
	if err != nil {
		slog.Error("failed to issue exchange code", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewExchangeFailedError())
		return
	}

	h.recorder.RecordSignIn("auth_code")

	redirect := h.config.MobileRedirectURL + "?code=" + url.QueryEscape(exchangeCode)
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

type exchangeRequest struct {
	Code string `json:"code"`
}

// Exchange はコールバックで発行されたワンタイムコードをセッションに引き換える。
// コードは一回限りで、短い有効期限を持つ。
// POST /api/auth/exchange
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingCodeError())
		return
	}

	user, session := h.exchange.Redeem(req.Code)
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewExchangeFailedError())
		return
	}

	writeAuthResponse(w, h.config.Cookie, user, session)
}

// Logout はプロバイダー側セッションを失効させ、Cookieを破棄する。
// プロバイダー呼び出しの失敗でもCookieは必ず破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := middleware.AccessTokenFromContext(r.Context())
	if err != nil {
		// 認証ミドルウェア外のルートなので、ヘッダーとCookieから直接探す
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		} else if cookie, cerr := r.Cookie(accessTokenCookie); cerr == nil {
			token = cookie.Value
		}
	}

	if token != "" {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			slog.Warn("provider signout failed", slog.String("error", err.Error()))
		}
	}

	clearSessionCookies(w, h.config.Cookie)
	writeJSON(w, http.StatusOK, map[string]string{"message": "サインアウトしました。"})
}

// isSupportedProvider は対応するOAuthプロバイダーかを返す。
func isSupportedProvider(provider string) bool {
	switch provider {
	case "google", "github", "apple":
		return true
	}
	return false
}
