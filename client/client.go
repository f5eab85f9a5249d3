// Package client はAuthBridge APIのGoクライアントSDKを提供する。
// モバイルアプリ側の通信層に相当し、トークンはグローバル状態に持たず
// 各メソッドの引数として明示的に受け取る。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// APIError はサーバーが返した構造化エラー。
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// IsUnauthorized はトークン無効（401）によるエラーかどうかを返す。
// セッション破棄のトリガーはこの判定のみに限定する。
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// User はAPIが返すユーザー情報。
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AuthResult はサインイン系エンドポイントのレスポンス。
// Tokenはアクセストークンで、以後のリクエストのBearerヘッダーに使う。
type AuthResult struct {
	Message string `json:"message"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

// Profile はマージ済みプロフィールビュー。
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url"`
}

// ProfileUpdate はプロフィール更新の入力。Avatarはnil可。
type ProfileUpdate struct {
	FullName string
	Username string
	Phone    string
	Address  string
	Avatar   *AvatarFile
}

// AvatarFile はアップロードするアバター画像。
type AvatarFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StoredDocument は書類アップロードの結果。
type StoredDocument struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// ScanResult はOCRスキャンの結果。
type ScanResult struct {
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Config はAPIClientの設定。
type Config struct {
	BaseURL string

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// APIClient はAuthBridge APIのHTTPクライアント。
// 認証が必要なメソッドはアクセストークンを引数で受け取る。
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// New はAPIClientを生成する。
func New(config Config) *APIClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// Register はメールアドレスとパスワードでアカウントを登録する。
func (c *APIClient) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	body := map[string]string{"email": email, "password": password, "full_name": fullName}
	var resp struct {
		Message string `json:"message"`
		Data    User   `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Login はメールアドレスとパスワードでサインインする。
func (c *APIClient) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var resp AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleSignIn はネイティブGoogleサインインで取得したIDトークンでサインインする。
func (c *APIClient) GoogleSignIn(ctx context.Context, idToken, nonce string) (*AuthResult, error) {
	body := map[string]string{"id_token": idToken, "nonce": nonce}
	var resp AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/google-signin", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangeCode はOAuthコールバックで受け取ったワンタイムコードをセッションに引き換える。
func (c *APIClient) ExchangeCode(ctx context.Context, code string) (*AuthResult, error) {
	body := map[string]string{"code": code}
	var resp AuthResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/exchange", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout はサーバー側のセッション失効を要求する。
func (c *APIClient) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", token, nil, nil)
}

// GetProfile はマージ済みプロフィールを取得する。
func (c *APIClient) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var resp Profile
	if err := c.doJSON(ctx, http.MethodGet, "/api/profile", token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProfile はプロフィールをmultipart/form-dataで更新する。
func (c *APIClient) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*Profile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"full_name": update.FullName,
		"username":  update.Username,
		"phone":     update.Phone,
		"address":   update.Address,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}

	if update.Avatar != nil {
		part, err := mw.CreateFormFile("avatar", update.Avatar.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to build avatar part: %w", err)
		}
		if _, err := part.Write(update.Avatar.Data); err != nil {
			return nil, fmt.Errorf("failed to write avatar part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	var resp struct {
		Message string  `json:"message"`
		Data    Profile `json:"data"`
	}
	if err := c.doMultipart(ctx, http.MethodPut, "/api/profile", token, &buf, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UploadDocument は書類ファイルをアップロードする。
func (c *APIClient) UploadDocument(ctx context.Context, token, filename string, data []byte) (*StoredDocument, error) {
	buf, contentType, err := buildFilePart("file", filename, data)
	if err != nil {
		return nil, err
	}
	var resp StoredDocument
	if err := c.doMultipart(ctx, http.MethodPost, "/api/upload/document", token, buf, contentType, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScanDocument は書類画像をOCRスキャンする。
func (c *APIClient) ScanDocument(ctx context.Context, token, filename string, data []byte) (*ScanResult, error) {
	buf, contentType, err := buildFilePart("image", filename, data)
	if err != nil {
		return nil, err
	}
	var resp ScanResult
	if err := c.doMultipart(ctx, http.MethodPost, "/api/upload/scan", token, buf, contentType, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func buildFilePart(partName, filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(partName, filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// doJSON はJSONリクエストを送信し、レスポンスをoutにデコードする。
// tokenが空でない場合はAuthorizationヘッダーを付与する。
func (c *APIClient) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, out)
}

func (c *APIClient) doMultipart(ctx context.Context, method, path, token string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.send(req, token, out)
}

func (c *APIClient) send(req *http.Request, token string, out any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "UNKNOWN"
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
