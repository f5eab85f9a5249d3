package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authbridge/internal/identity"
	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// ミドルウェア層と同じワイヤーフォーマットを使う。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// Identity Backendの拒否（4xx）は資格情報エラー、障害（5xx）はゲートウェイエラーとして扱う。
func handleServiceError(w http.ResponseWriter, err error) {
	var provErr *identity.ProviderError
	if errors.As(err, &provErr) {
		if provErr.IsRejection() {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewProviderRejectedError(provErr.Message))
			return
		}
		slog.Error("identity backend error",
			slog.Int("provider_status", provErr.StatusCode),
			slog.String("message", provErr.Message),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewProviderError())
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidInput, model.ErrCodeMissingCode, model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeMissingToken, model.ErrCodeUnauthorized, model.ErrCodeProviderRejected:
		return http.StatusUnauthorized
	case model.ErrCodeExchangeFailed:
		return http.StatusUnauthorized
	case model.ErrCodeProviderError, model.ErrCodeStoreUnavailable:
		return http.StatusBadGateway
	case model.ErrCodeUploadFailed:
		return http.StatusBadGateway
	case model.ErrCodeProfileLookupFailed, model.ErrCodeProfileCreateFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
