package user

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/lms-portal/core"
)

type otpEntry struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// otpStore keeps at most one live code per identifier.
type otpStore struct {
	mu          sync.Mutex
	entries     map[string]*otpEntry
	length      int
	ttl         time.Duration
	maxAttempts int
}

func newOtpStore(length int, ttl time.Duration, maxAttempts int) *otpStore {
	if length <= 0 {
		length = 6
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &otpStore{
		entries:     make(map[string]*otpEntry),
		length:      length,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

func otpKey(identifier string) string {
	return core.CleanString(identifier, true /* lower */)
}

// issue replaces any previous code for key.
func (s *otpStore) issue(key string, now time.Time) (string, error) {
	code, err := randomDigits(s.length)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	s.entries[key] = &otpEntry{code: code, expiresAt: now.Add(s.ttl)}
	return code, nil
}

// verify consumes the code on success; too many failures burn it.
func (s *otpStore) verify(key, code string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return ErrInvalidOtp
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(strings.TrimSpace(code))) == 0 {
		entry.attempts++
		if entry.attempts >= s.maxAttempts {
			delete(s.entries, key)
		}
		return ErrInvalidOtp
	}
	delete(s.entries, key)
	return nil
}

func (s *otpStore) sweep(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
