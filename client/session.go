package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State はセッションの状態。
type State int

const (
	// StateInitializing は起動直後、永続トークンの検証中。
	StateInitializing State = iota
	// StateAuthenticated は有効なトークンとユーザー情報を保持している。
	StateAuthenticated
	// StateUnauthenticated はトークンを保持していない、または無効だった。
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ProfileAPI はSessionManagerが必要とするAPI操作のインターフェース。
type ProfileAPI interface {
	GetProfile(ctx context.Context, token string) (*Profile, error)
	Logout(ctx context.Context, token string) error
}

// Listener は状態遷移の通知を受け取る。画面遷移のトリガーに使う。
type Listener func(state State)

// SessionManager はクライアント側のセッションライフサイクルを管理する。
// トークンはグローバル状態に置かず、APIコールごとに明示的に渡す。
type SessionManager struct {
	api      ProfileAPI
	store    TokenStore
	listener Listener

	mu    sync.Mutex
	state State
	token string
	user  *Profile
}

// NewSessionManager はSessionManagerを生成する。listenerはnil可。
func NewSessionManager(api ProfileAPI, store TokenStore, listener Listener) *SessionManager {
	return &SessionManager{
		api:      api,
		store:    store,
		listener: listener,
		state:    StateInitializing,
	}
}

// Start は永続化されたトークンを検証し、初期状態を確定する。
//
//   - トークンなし → Unauthenticated
//   - JWTのexpが既に過ぎている → ネットワークを使わずローカルで破棄してUnauthenticated
//   - プロフィール取得成功 → Authenticated
//   - 401 → トークンを破棄してUnauthenticated
//   - その他のエラー（ネットワーク断・サーバー障害）→ Unauthenticatedだが
//     永続トークンは残し、次回起動で再試行できるようにする
func (m *SessionManager) Start(ctx context.Context) error {
	token, err := m.store.Load()
	if err != nil {
		m.transition(StateUnauthenticated, "", nil)
		return err
	}
	if token == "" {
		m.transition(StateUnauthenticated, "", nil)
		return nil
	}

	if tokenExpired(token) {
		clearErr := m.store.Clear()
		m.transition(StateUnauthenticated, "", nil)
		return clearErr
	}

	user, err := m.api.GetProfile(ctx, token)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			// サーバーがトークンを拒否した場合のみ破棄する
			_ = m.store.Clear()
		}
		m.transition(StateUnauthenticated, "", nil)
		return err
	}

	m.transition(StateAuthenticated, token, user)
	return nil
}

// Login は新しいトークンを検証・永続化し、Authenticatedへ遷移する。
// プロフィール取得が成功するまでは永続化も遷移も行わない。
func (m *SessionManager) Login(ctx context.Context, token string) error {
	user, err := m.api.GetProfile(ctx, token)
	if err != nil {
		return err
	}

	if err := m.store.Save(token); err != nil {
		return err
	}

	m.transition(StateAuthenticated, token, user)
	return nil
}

// Logout はメモリとストアのトークンを破棄し、Unauthenticatedへ遷移する。
// サーバー側の失効はベストエフォートで、失敗してもローカル破棄は完了する。
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token != "" {
		// 失敗はローカル破棄を妨げない
		_ = m.api.Logout(ctx, token)
	}

	clearErr := m.store.Clear()
	m.transition(StateUnauthenticated, "", nil)
	return clearErr
}

// State は現在の状態を返す。
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token は現在のアクセストークンを返す。未認証時は空文字列。
func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// CurrentUser は現在のユーザープロフィールを返す。未認証時はnil。
func (m *SessionManager) CurrentUser() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

func (m *SessionManager) transition(state State, token string, user *Profile) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.token = token
	m.user = user
	listener := m.listener
	m.mu.Unlock()

	if changed && listener != nil {
		listener(state)
	}
}

// tokenExpired はJWTのexpクレームが既に過ぎているかをローカルで判定する。
// 署名検証はサーバーの責務のため行わない。expが読めないトークンは
// 期限切れ扱いにせず、サーバーの判定に委ねる。
func tokenExpired(token string) bool {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Now().After(claims.ExpiresAt.Time)
}
