// Package security はアプリケーションのセキュリティ機能を提供する。
//
// FieldSanitizerService はプロフィールのテキストフィールド
// （full_name、username、phone、address）をサニタイズする。
// これらはプレーンテキストとしてのみ扱うため、bluemondayの
// StrictPolicyで全タグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldSanitizerService はテキストフィールドのサニタイズ機能のインターフェースを定義する。
// プロフィール更新の保存前に使用される。
type FieldSanitizerService interface {
	// Sanitize は入力からHTMLタグをすべて除去し、前後の空白を落とした
	// プレーンテキストを返す。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはいかなるHTML要素・属性も許可しない。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグをすべて除去したプレーンテキストを返す。
func (s *fieldSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
