package handler

import (
	"net/http"

	"github.com/hitoshi/authbridge/internal/model"
)

const (
	accessTokenCookie  = "sb-access-token"
	refreshTokenCookie = "sb-refresh-token"
)

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge int // 秒
}

// userResponse は認証結果に含まれるユーザーのワイヤーフォーマット。
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// authResponse はサインイン成功レスポンス。
// Web向けにはCookieも設定するが、モバイルクライアントは
// ボディのアクセストークンを保存して以後Bearerヘッダーで送る。
// リフレッシュトークンはhttpOnly Cookieのみで運ぶ。
type authResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

// writeSessionCookies はアクセス/リフレッシュトークンをhttpOnly Cookieとして設定する。
func writeSessionCookies(w http.ResponseWriter, config CookieConfig, session *model.Session) {
	for _, c := range []struct {
		name  string
		value string
	}{
		{accessTokenCookie, session.AccessToken},
		{refreshTokenCookie, session.RefreshToken},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     "/",
			Domain:   config.Domain,
			MaxAge:   config.MaxAge,
			HttpOnly: true,
			Secure:   config.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// clearSessionCookies はセッションCookieを失効させる。
func clearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   config.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   config.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// writeAuthResponse はユーザーとアクセストークンをJSONで返し、Cookieも設定する。
func writeAuthResponse(w http.ResponseWriter, config CookieConfig, user *model.UserIdentity, session *model.Session) {
	writeSessionCookies(w, config, session)
	writeJSON(w, http.StatusOK, authResponse{
		Message: "サインインしました。",
		User: userResponse{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			AvatarURL: user.AvatarURL,
		},
		Token: session.AccessToken,
	})
}
