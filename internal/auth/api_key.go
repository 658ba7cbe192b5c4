package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey is returned when a request carries no API key
	ErrMissingKey = errors.New("missing API key")
	// ErrKeyNotFound is returned when the presented key does not match
	ErrKeyNotFound = errors.New("invalid API key")
)

// APIKeyRecord is the view of an authenticated caller.
type APIKeyRecord struct {
	// Hint is the masked key stored with ledger entries.
	Hint string
}

// APIKeyStore resolves plaintext API keys into caller records.
type APIKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error)
}

// StaticKeyStore accepts a single shared secret.
type StaticKeyStore struct {
	key []byte
}

// NewStaticKeyStore returns a store for key. An empty key disables authentication.
func NewStaticKeyStore(key string) *StaticKeyStore {
	return &StaticKeyStore{key: []byte(key)}
}

// Enabled reports whether a key is configured.
func (s *StaticKeyStore) Enabled() bool {
	return len(s.key) > 0
}

// Lookup compares the presented key in constant time.
func (s *StaticKeyStore) Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error) {
	if plaintextKey == "" {
		return nil, ErrMissingKey
	}
	if subtle.ConstantTimeCompare([]byte(plaintextKey), s.key) != 1 {
		return nil, ErrKeyNotFound
	}
	return &APIKeyRecord{Hint: MaskKey(plaintextKey)}, nil
}

// KeyFromRequest extracts the key from X-API-Key or an Authorization bearer token.
func KeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
