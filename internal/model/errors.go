// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeMissingToken        = "MISSING_TOKEN"
	ErrCodeMissingCode         = "MISSING_CODE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeProviderRejected    = "PROVIDER_REJECTED"
	ErrCodeProviderError       = "PROVIDER_ERROR"
	ErrCodeExchangeFailed      = "EXCHANGE_FAILED"
	ErrCodeProfileLookupFailed = "PROFILE_LOOKUP_FAILED"
	ErrCodeProfileCreateFailed = "PROFILE_CREATE_FAILED"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeUploadFailed        = "UPLOAD_FAILED"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
)

// ErrProfileExists はprofilesテーブルの主キー一意制約に衝突したことを表す。
// 初回サインインの競合時に2番目のINSERTを成功扱いにするための判別用。
var ErrProfileExists = errors.New("profile already exists")

// NewInvalidInputError は必須フィールド欠落エラーを生成する。
func NewInvalidInputError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("必須フィールドがありません: %s", field),
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	}
}

// NewMissingTokenError はIDトークン欠落エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "id_tokenが指定されていません。",
		Category: "validation",
		Action:   "id_tokenを含めて再度リクエストしてください。",
	}
}

// NewMissingCodeError は認可コード欠落エラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "認可コードが指定されていません。",
		Category: "validation",
		Action:   "認可コード付きでリクエストしてください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// プロバイダー側の詳細は呼び出し元に漏らさない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewProviderRejectedError はIdentity Backendがリクエストを拒否した場合のエラーを生成する。
func NewProviderRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderRejected,
		Message:  fmt.Sprintf("認証プロバイダーがリクエストを拒否しました: %s", reason),
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewProviderError はIdentity Backendへの到達失敗・内部エラーを生成する。
func NewProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  "認証プロバイダーとの通信に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewExchangeFailedError は認可コード交換失敗エラーを生成する。
func NewExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeExchangeFailed,
		Message:  "認可コードをセッションに交換できませんでした。",
		Category: "auth",
		Action:   "ログインをやり直してください。",
	}
}

// NewProfileLookupFailedError はプロフィール行の検索失敗エラーを生成する。
// 行が存在しないことはエラーではなく、検索処理自体の失敗のみが対象。
func NewProfileLookupFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileLookupFailed,
		Message:  "ユーザープロフィールを確認できませんでした。",
		Category: "profile",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProfileCreateFailedError はプロフィール行の作成失敗エラーを生成する。
// プロフィール行のないセッションは不整合な状態のため、サインイン全体を失敗させる。
func NewProfileCreateFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileCreateFailed,
		Message:  "サインイン後のプロフィール作成に失敗しました。",
		Category: "profile",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStoreUnavailableError はプロフィールストアへのアクセス失敗エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "プロフィールストアにアクセスできませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUploadFailedError はBlob Storeへのアップロード失敗エラーを生成する。
func NewUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("ファイルのアップロードに失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationFailedError は更新フィールドの検証失敗エラーを生成する。
func NewValidationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値の検証に失敗しました: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
