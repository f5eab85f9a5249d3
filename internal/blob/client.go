// Package blob はBlob Store（オブジェクトストレージ）のRESTクライアントを提供する。
// バケット配下への書き込みはサービスキーで認可され、読み取りは公開URLで行う。
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	objectPath = "/storage/v1/object"
	listPath   = "/storage/v1/object/list"
	publicPath = "/storage/v1/object/public"
)

// Config はBlob Storeクライアントの設定。
type Config struct {
	BaseURL    string
	ServiceKey string

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// ObjectInfo はバケット内のオブジェクトのメタデータ。
type ObjectInfo struct {
	Name string `json:"name"`
}

// Client はBlob StoreのRESTクライアント。
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: config, httpClient: httpClient}
}

// Upload はバケットの指定パスにオブジェクトを書き込む。
// upsertがtrueの場合は既存オブジェクトを上書きする。
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error {
	endpoint := fmt.Sprintf("%s%s/%s/%s", c.config.BaseURL, objectPath, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	return c.doExpectOK(req, "upload")
}

// List はバケット内のprefix配下のオブジェクト一覧を返す。
func (c *Client) List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	endpoint := fmt.Sprintf("%s%s/%s", c.config.BaseURL, listPath, bucket)

	body, err := json.Marshal(map[string]any{
		"prefix": prefix,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode list request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob store list request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read list response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob store list returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var objects []ObjectInfo
	if err := json.Unmarshal(respBody, &objects); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}

	return objects, nil
}

// Remove はバケットから複数オブジェクトを削除する。
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("%s%s/%s", c.config.BaseURL, objectPath, bucket)

	body, err := json.Marshal(map[string]any{
		"prefixes": paths,
	})
	if err != nil {
		return fmt.Errorf("failed to encode remove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create remove request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.ServiceKey)
	req.Header.Set("Content-Type", "application/json")

	return c.doExpectOK(req, "remove")
}

// PublicURL はオブジェクトの公開URLを構築する。ネットワークアクセスはしない。
func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s%s/%s/%s", c.config.BaseURL, publicPath, bucket, path)
}

// doExpectOK はリクエストを実行し、2xx以外をエラーにする。
func (c *Client) doExpectOK(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("blob store %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("blob store %s returned status %d: %s", op, resp.StatusCode, string(respBody))
	}

	// ボディは使わないが、コネクション再利用のため読み捨てる
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
