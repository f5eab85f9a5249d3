// Package identity はIdentity Backend（GoTrue系の認証サービス）のRESTクライアントを提供する。
// サインアップ、各種グラントによるセッション発行、トークン・イントロスペクション、
// サインアウトをこのシステムの境界として公開する。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
)

const (
	signupPath    = "/auth/v1/signup"
	tokenPath     = "/auth/v1/token"
	userPath      = "/auth/v1/user"
	logoutPath    = "/auth/v1/logout"
	authorizePath = "/auth/v1/authorize"
)

// Config はIdentity Backendクライアントの設定。
type Config struct {
	BaseURL string
	AnonKey string

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// Client はIdentity BackendのRESTクライアント。
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{config: config, httpClient: httpClient}
}

// ProviderError はIdentity Backendが返したエラーを表す。
// StatusCodeが4xxなら呼び出し元入力に起因する拒否、それ以外は
// プロバイダー側の障害として扱う。
type ProviderError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity backend returned status %d: %s", e.StatusCode, e.Message)
}

// IsRejection はプロバイダーが呼び出し元入力を拒否したか（4xx）を返す。
func (e *ProviderError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// wireUser はIdentity Backendのユーザー表現。
type wireUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName  string `json:"full_name"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user_metadata"`
}

// wireSession はトークンエンドポイントのレスポンス。
type wireSession struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         *wireUser `json:"user"`
}

// wireError はIdentity Backendのエラーレスポンス。
// GoTrue系は{error, error_description}と{msg}の両形式を返すため両方読む。
type wireError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

// SignUp は新規ユーザーを登録する。セッションは発行しない。
// metadataはプロバイダー側のuser_metadataにそのまま保存される。
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.UserIdentity, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}

	respBody, err := c.doJSON(ctx, http.MethodPost, c.config.BaseURL+signupPath, "", body)
	if err != nil {
		return nil, err
	}

	var u wireUser
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, fmt.Errorf("failed to parse signup response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty user id in signup response")
	}

	return toUser(&u), nil
}

// SignInPassword はメールアドレスとパスワードでセッションを発行する。
func (c *Client) SignInPassword(ctx context.Context, email, password string) (*model.UserIdentity, *model.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	return c.tokenGrant(ctx, "password", body)
}

// SignInIDToken はフェデレーテッドIDトークン（+ nonce）でセッションを発行する。
// nonceは元リクエストへのトークン束縛とリプレイ防止のためプロバイダーに渡す。
func (c *Client) SignInIDToken(ctx context.Context, provider, idToken, nonce string) (*model.UserIdentity, *model.Session, error) {
	body := map[string]any{
		"provider": provider,
		"id_token": idToken,
		"nonce":    nonce,
	}
	return c.tokenGrant(ctx, "id_token", body)
}

// ExchangeCode はOAuth認可コードをセッションに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (*model.UserIdentity, *model.Session, error) {
	body := map[string]any{
		"auth_code": code,
	}
	return c.tokenGrant(ctx, "authorization_code", body)
}

// GetUser はアクセストークンをイントロスペクションし、対応するユーザーを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.UserIdentity, error) {
	respBody, err := c.doJSON(ctx, http.MethodGet, c.config.BaseURL+userPath, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var u wireUser
	if err := json.Unmarshal(respBody, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty user id in user response")
	}

	return toUser(&u), nil
}

// SignOut はプロバイダー側のセッションを失効させる。ベストエフォート。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.doJSON(ctx, http.MethodPost, c.config.BaseURL+logoutPath, accessToken, nil)
	return err
}

// AuthorizeURL はOAuth同意画面へのリダイレクトURLを構築する。
func (c *Client) AuthorizeURL(provider, redirectTo string) string {
	params := url.Values{
		"provider":    {provider},
		"redirect_to": {redirectTo},
	}
	return c.config.BaseURL + authorizePath + "?" + params.Encode()
}

// tokenGrant は指定グラントでトークンエンドポイントを呼び出す。
func (c *Client) tokenGrant(ctx context.Context, grantType string, body map[string]any) (*model.UserIdentity, *model.Session, error) {
	endpoint := c.config.BaseURL + tokenPath + "?grant_type=" + url.QueryEscape(grantType)

	respBody, err := c.doJSON(ctx, http.MethodPost, endpoint, "", body)
	if err != nil {
		return nil, nil, err
	}

	var s wireSession
	if err := json.Unmarshal(respBody, &s); err != nil {
		return nil, nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if s.AccessToken == "" {
		return nil, nil, fmt.Errorf("empty access token in response")
	}
	if s.User == nil || s.User.ID == "" {
		return nil, nil, fmt.Errorf("missing user in token response")
	}

	return toUser(s.User), &model.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
	}, nil
}

// doJSON はJSONリクエストを実行し、2xx以外はProviderErrorを返す。
// apikeyヘッダーは常に付与し、bearerTokenが空でなければAuthorizationも付与する。
func (c *Client) doJSON(ctx context.Context, method, endpoint, bearerToken string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.config.AnonKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity backend request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Message:    parseErrorMessage(respBody),
		}
	}

	return respBody, nil
}

// parseErrorMessage はエラーレスポンスから人間可読なメッセージを取り出す。
func parseErrorMessage(body []byte) string {
	var we wireError
	if err := json.Unmarshal(body, &we); err == nil {
		switch {
		case we.ErrorDescription != "":
			return we.ErrorDescription
		case we.Msg != "":
			return we.Msg
		case we.Error != "":
			return we.Error
		}
	}
	return string(body)
}

// toUser はwireUserをドメインモデルに変換する。
func toUser(u *wireUser) *model.UserIdentity {
	return &model.UserIdentity{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.UserMetadata.FullName,
		AvatarURL: u.UserMetadata.AvatarURL,
	}
}
