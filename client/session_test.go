package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type mockProfileAPI struct {
	getProfileFn  func(ctx context.Context, token string) (*Profile, error)
	logoutCalled  bool
	logoutToken   string
	profileCalled int
}

func (m *mockProfileAPI) GetProfile(ctx context.Context, token string) (*Profile, error) {
	m.profileCalled++
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, token)
	}
	return &Profile{ID: "user-1", Email: "taro@example.com"}, nil
}

func (m *mockProfileAPI) Logout(ctx context.Context, token string) error {
	m.logoutCalled = true
	m.logoutToken = token
	return nil
}

type memoryTokenStore struct {
	token   string
	cleared bool
}

func (s *memoryTokenStore) Load() (string, error) { return s.token, nil }
func (s *memoryTokenStore) Save(token string) error {
	s.token = token
	return nil
}
func (s *memoryTokenStore) Clear() error {
	s.token = ""
	s.cleared = true
	return nil
}

// signedToken は指定の有効期限を持つHS256署名済みJWTを生成する。
func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestStart_NoStoredToken_Unauthenticated(t *testing.T) {
	api := &mockProfileAPI{}
	manager := NewSessionManager(api, &memoryTokenStore{}, nil)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if manager.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", manager.State())
	}
	if api.profileCalled != 0 {
		t.Error("no network call expected without a token")
	}
}

func TestStart_ValidToken_Authenticated(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	store := &memoryTokenStore{token: token}
	var states []State
	manager := NewSessionManager(&mockProfileAPI{}, store, func(s State) { states = append(states, s) })

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if manager.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", manager.State())
	}
	if manager.Token() != token {
		t.Error("manager should hold the stored token")
	}
	if manager.CurrentUser() == nil || manager.CurrentUser().ID != "user-1" {
		t.Errorf("unexpected user: %+v", manager.CurrentUser())
	}
	if len(states) != 1 || states[0] != StateAuthenticated {
		t.Errorf("listener states = %v", states)
	}
}

func TestStart_ExpiredJWT_ClearedLocallyWithoutNetworkCall(t *testing.T) {
	token := signedToken(t, time.Now().Add(-time.Hour))
	store := &memoryTokenStore{token: token}
	api := &mockProfileAPI{}
	manager := NewSessionManager(api, store, nil)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if manager.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", manager.State())
	}
	if api.profileCalled != 0 {
		t.Error("expired token must be discarded without a network call")
	}
	if !store.cleared {
		t.Error("expired token should be cleared from the store")
	}
}

func TestStart_ServerRejectsToken_TokenCleared(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	store := &memoryTokenStore{token: token}
	api := &mockProfileAPI{
		getProfileFn: func(ctx context.Context, token string) (*Profile, error) {
			return nil, &APIError{Status: http.StatusUnauthorized, Code: "MISSING_TOKEN"}
		},
	}
	manager := NewSessionManager(api, store, nil)

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error from Start")
	}
	if manager.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", manager.State())
	}
	if !store.cleared {
		t.Error("401 should clear the persisted token")
	}
}

func TestStart_TransientError_KeepsPersistedToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	store := &memoryTokenStore{token: token}
	api := &mockProfileAPI{
		getProfileFn: func(ctx context.Context, token string) (*Profile, error) {
			return nil, &APIError{Status: http.StatusBadGateway, Code: "PROVIDER_ERROR"}
		},
	}
	manager := NewSessionManager(api, store, nil)

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error from Start")
	}
	if manager.State() != StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", manager.State())
	}
	if store.cleared || store.token != token {
		t.Error("transient failure must not clear the persisted token")
	}
}

func TestStart_NetworkError_KeepsPersistedToken(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))
	store := &memoryTokenStore{token: token}
	api := &mockProfileAPI{
		getProfileFn: func(ctx context.Context, token string) (*Profile, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	manager := NewSessionManager(api, store, nil)

	_ = manager.Start(context.Background())

	if store.cleared {
		t.Error("network failure must not clear the persisted token")
	}
}

func TestLogin_ProfileFetchFails_NoPersistNoTransition(t *testing.T) {
	store := &memoryTokenStore{}
	api := &mockProfileAPI{
		getProfileFn: func(ctx context.Context, token string) (*Profile, error) {
			return nil, &APIError{Status: http.StatusUnauthorized}
		},
	}
	manager := NewSessionManager(api, store, nil)

	if err := manager.Login(context.Background(), "at-bad"); err == nil {
		t.Fatal("expected error from Login")
	}
	if store.token != "" {
		t.Error("token must not be persisted when profile fetch fails")
	}
	if manager.State() == StateAuthenticated {
		t.Error("manager must not transition to authenticated")
	}
}

func TestLogin_Success_PersistsAndNotifies(t *testing.T) {
	store := &memoryTokenStore{}
	var states []State
	manager := NewSessionManager(&mockProfileAPI{}, store, func(s State) { states = append(states, s) })

	if err := manager.Login(context.Background(), "at-new"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if store.token != "at-new" {
		t.Errorf("stored token = %q, want at-new", store.token)
	}
	if len(states) != 1 || states[0] != StateAuthenticated {
		t.Errorf("listener states = %v", states)
	}
}

func TestLogout_ClearsEverythingAndCallsServer(t *testing.T) {
	store := &memoryTokenStore{}
	api := &mockProfileAPI{}
	manager := NewSessionManager(api, store, nil)

	if err := manager.Login(context.Background(), "at-1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if !api.logoutCalled || api.logoutToken != "at-1" {
		t.Error("server-side logout should be attempted with the active token")
	}
	if manager.State() != StateUnauthenticated || manager.Token() != "" || manager.CurrentUser() != nil {
		t.Error("local session should be fully cleared")
	}
	if store.token != "" {
		t.Error("persisted token should be cleared")
	}
}

func TestTokenExpired_MalformedToken_NotExpired(t *testing.T) {
	// expが読めないトークンはサーバー判定に委ねる
	if tokenExpired("not-a-jwt") {
		t.Error("malformed token should not be treated as expired locally")
	}
}
