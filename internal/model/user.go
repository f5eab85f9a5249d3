// Package model はドメインモデルを定義する。
package model

import "time"

// UserIdentity はIdentity Backendが管理するユーザーを表す。
// このシステムからはイミュータブルで、プロバイダーのメタデータ
// （full_name、avatar_url）をフラットに保持する。
type UserIdentity struct {
	ID        string
	Email     string
	FullName  string
	AvatarURL string
}

// Session はIdentity Backendが発行したアクセス/リフレッシュトークンのペアを表す。
// トークンの中身はこのシステムにとって不透明で、輸送するだけ。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // 秒。プロバイダー管理の有効期限
}

// Profile はprofilesテーブルの1行を表す。
// UserIdentityと1:1で、初回のフェデレーテッドサインインまたは
// プロフィール更新時にこのシステムが作成・更新する。
type Profile struct {
	ID        string
	FullName  string
	Username  string
	AvatarURL string
	Phone     string
	Address   string
	UpdatedAt time.Time
}

// ProfileView はGET /api/profileで返すマージ済みビュー。
// emailは常にUserIdentity側から取り、avatar_urlは
// プロフィール行 → プロバイダーメタデータ → 既定URL の順で解決するため
// nullにはならない。
type ProfileView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url"`
}
