package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
)

// ExchangeStore はOAuthコールバック後にモバイルアプリへ渡す
// ワンタイムコードとセッションの対応を保持する。
// トークンをディープリンクURLに直接載せない代わりに、
// 短寿命・一回限りのコードを発行し、POST /api/auth/exchange で引き換える。
type ExchangeStore struct {
	mu      sync.Mutex
	entries map[string]exchangeEntry
	ttl     time.Duration
}

type exchangeEntry struct {
	user      *model.UserIdentity
	session   *model.Session
	expiresAt time.Time
}

// NewExchangeStore はExchangeStoreを生成する。ttlが0の場合は60秒。
func NewExchangeStore(ttl time.Duration) *ExchangeStore {
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &ExchangeStore{
		entries: make(map[string]exchangeEntry),
		ttl:     ttl,
	}
}

// Issue はユーザーとセッションの組に対するワンタイムコードを発行する。
func (s *ExchangeStore) Issue(user *model.UserIdentity, session *model.Session) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate exchange code: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	s.entries[code] = exchangeEntry{
		user:      user,
		session:   session,
		expiresAt: time.Now().Add(s.ttl),
	}

	return code, nil
}

// Redeem はコードをユーザーとセッションに引き換える。コードは即座に無効化され、
// 2回目以降の引き換えや期限切れは(nil, nil)を返す。
func (s *ExchangeStore) Redeem(code string) (*model.UserIdentity, *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[code]
	if !ok {
		return nil, nil
	}
	delete(s.entries, code)

	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}

	return entry.user, entry.session
}

// sweepLocked は期限切れエントリを削除する。呼び出し元がロックを保持すること。
func (s *ExchangeStore) sweepLocked() {
	now := time.Now()
	for code, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, code)
		}
	}
}

// generateCode は暗号的に安全なワンタイムコードを生成する。
func generateCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
