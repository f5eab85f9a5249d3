package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/ocr"
	"github.com/hitoshi/authbridge/internal/upload"
)

// maxUploadSize は書類アップロードの上限（20MB）。
const maxUploadSize = 20 << 20

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	Store(ctx context.Context, userID, filename, contentType string, data []byte) (*upload.StoredFile, error)
	Scan(ctx context.Context, filename string, data []byte) (*ocr.ScanResult, error)
}

// UploadHandler は書類アップロードのHTTPハンドラー。
type UploadHandler struct {
	service UploadServiceInterface
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface) *UploadHandler {
	return &UploadHandler{service: service}
}

// Document は書類ファイルを保管する。
// POST /api/upload/document (multipart、fileパート)
func (h *UploadHandler) Document(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	filename, contentType, data, ok := readFilePart(w, r, "file")
	if !ok {
		return
	}

	stored, err := h.service.Store(r.Context(), user.ID, filename, contentType, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "ファイルをアップロードしました。",
		"url":     stored.PublicURL,
	})
}

// Scan は書類をOCRスキャンし、抽出結果を返す。保管はしない。
// POST /api/upload/scan (multipart、imageパート)
func (h *UploadHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserFromContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	filename, _, data, ok := readFilePart(w, r, "image")
	if !ok {
		return
	}

	result, err := h.service.Scan(r.Context(), filename, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readFilePart はmultipartフォームの指定パートを読み取る。
// 失敗時はエラーレスポンスを書き込み、okをfalseで返す。
func readFilePart(w http.ResponseWriter, r *http.Request, partName string) (filename, contentType string, data []byte, ok bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("multipart/form-dataが必要です"))
		return "", "", nil, false
	}

	file, header, err := r.FormFile(partName)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError(partName+"パートが必要です"))
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("ファイルを読み取れません"))
		return "", "", nil, false
	}

	return header.Filename, header.Header.Get("Content-Type"), data, true
}
