package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/ocr"
	"github.com/hitoshi/authbridge/internal/upload"
)

type mockUploadService struct {
	storeFn func(ctx context.Context, userID, filename, contentType string, data []byte) (*upload.StoredFile, error)
	scanFn  func(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error)
}

func (m *mockUploadService) Store(ctx context.Context, userID, filename, contentType string, data []byte) (*upload.StoredFile, error) {
	if m.storeFn != nil {
		return m.storeFn(ctx, userID, filename, contentType, data)
	}
	return &upload.StoredFile{Path: userID + "/" + filename}, nil
}

func (m *mockUploadService) Scan(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, filename, data)
	}
	return &ocr.ScanResult{Text: ""}, nil
}

var _ UploadServiceInterface = (*mockUploadService)(nil)

func buildFileForm(t *testing.T, partName, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(partName, filename)
	if err != nil {
		t.Fatalf("failed to create file part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadDocument_Valid_ReturnsPublicURL(t *testing.T) {
	var gotUserID, gotFilename string
	service := &mockUploadService{
		storeFn: func(ctx context.Context, userID, filename, contentType string, data []byte) (*upload.StoredFile, error) {
			gotUserID = userID
			gotFilename = filename
			return &upload.StoredFile{
				Path:      userID + "/1700000000000_invoice.pdf",
				PublicURL: "https://blob.example.com/documents/" + userID + "/1700000000000_invoice.pdf",
			}, nil
		},
	}
	h := NewUploadHandler(service)

	body, contentType := buildFileForm(t, "file", "invoice.pdf", []byte("%PDF-1.7"))
	req := authedRequest(http.MethodPost, "/api/upload/document", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Document(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	if gotUserID != "user-1" || gotFilename != "invoice.pdf" {
		t.Errorf("unexpected store args: user=%s file=%s", gotUserID, gotFilename)
	}
	var respBody struct {
		Message string `json:"message"`
		URL     string `json:"url"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if respBody.URL != "https://blob.example.com/documents/user-1/1700000000000_invoice.pdf" {
		t.Errorf("unexpected url: %s", respBody.URL)
	}
	if respBody.Message == "" {
		t.Error("expected message in response")
	}
}

func TestUploadDocument_MissingFilePart_Returns400(t *testing.T) {
	h := NewUploadHandler(&mockUploadService{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()

	req := authedRequest(http.MethodPost, "/api/upload/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	h.Document(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Result().StatusCode)
	}
}

func TestUploadDocument_NoUser_Returns401(t *testing.T) {
	h := NewUploadHandler(&mockUploadService{})

	body, contentType := buildFileForm(t, "file", "invoice.pdf", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload/document", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Document(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestUploadScan_Valid_ReturnsExtractedFields(t *testing.T) {
	service := &mockUploadService{
		scanFn: func(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error) {
			return &ocr.ScanResult{
				Text:   "請求書 合計 12,000円",
				Fields: map[string]string{"total": "12000"},
			}, nil
		},
	}
	h := NewUploadHandler(service)

	body, contentType := buildFileForm(t, "image", "receipt.jpg", []byte("fake-jpeg"))
	req := authedRequest(http.MethodPost, "/api/upload/scan", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Scan(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	var result ocr.ScanResult
	if err := json.NewDecoder(w.Result().Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if result.Fields["total"] != "12000" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestUploadScan_ServiceFailure_Returns502(t *testing.T) {
	service := &mockUploadService{
		scanFn: func(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error) {
			return nil, model.NewProviderError()
		},
	}
	h := NewUploadHandler(service)

	body, contentType := buildFileForm(t, "image", "receipt.jpg", []byte("fake-jpeg"))
	req := authedRequest(http.MethodPost, "/api/upload/scan", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Scan(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Result().StatusCode)
	}
}
