// Package ocr は外部OCRサービス連携機能を提供する。
// アップロードされた書類画像をOCRサービスへ転送し、抽出結果を取得する。
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
)

// ScanResult はOCRサービスの抽出結果。
type ScanResult struct {
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Client はOCRサービスのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// Scan は書類画像をOCRサービスへ送信し、抽出結果を返す。
func (c *Client) Scan(ctx context.Context, filename string, data []byte) (*ScanResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("スキャン対象のデータが空です")
	}

	// multipartボディ構築
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("multipartボディの構築に失敗しました: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("multipartボディの書き込みに失敗しました: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("multipartボディのクローズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/scan", &body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("OCRサービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("filename", filename),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("OCRレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("OCRサービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("filename", filename),
		)
		return nil, fmt.Errorf("OCRサービスがステータス %d を返しました", resp.StatusCode)
	}

	var result ScanResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("OCRレスポンスのパースに失敗しました: %w", err)
	}

	return &result, nil
}
