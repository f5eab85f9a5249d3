package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authbridge/internal/middleware"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/profile"
)

// maxProfileFormSize はプロフィール更新multipartフォームの上限（10MB）。
const maxProfileFormSize = 10 << 20

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, user *model.UserIdentity) (*model.ProfileView, error)
	Update(ctx context.Context, user *model.UserIdentity, input profile.UpdateInput) (*model.ProfileView, error)
}

// ProfileUpdateRecorder はプロフィール更新のメトリクス記録に必要なインターフェース。
type ProfileUpdateRecorder interface {
	RecordProfileUpdate()
}

// ProfileHandler はプロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service  ProfileServiceInterface
	recorder ProfileUpdateRecorder
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, recorder ProfileUpdateRecorder) *ProfileHandler {
	return &ProfileHandler{service: service, recorder: recorder}
}

// Get は認証済みユーザーのマージ済みプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	view, err := h.service.Get(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Update はmultipart/form-dataでプロフィールを更新する。
// スカラー項目はフォームフィールド、アバター画像は avatar パートで受け取る。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := r.ParseMultipartForm(maxProfileFormSize); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("multipart/form-dataが必要です"))
		return
	}

	input := profile.UpdateInput{
		FullName: r.FormValue("full_name"),
		Username: r.FormValue("username"),
		Phone:    r.FormValue("phone"),
		Address:  r.FormValue("address"),
	}

	file, header, err := r.FormFile("avatar")
	switch {
	case err == nil:
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("アバターファイルを読み取れません"))
			return
		}
		input.Avatar = &profile.AvatarUpload{
			Data:        data,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
		}
	case errors.Is(err, http.ErrMissingFile):
		// アバターなしのスカラー更新
	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationFailedError("avatarパートが不正です"))
		return
	}

	view, err := h.service.Update(r.Context(), user, input)
	if err != nil {
		slog.Error("profile update failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordProfileUpdate()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "プロフィールを更新しました。",
		"data":    view,
	})
}
