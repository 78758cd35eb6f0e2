package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeWrite grants access to the endpoints that create customers, products
// and orders.
const ScopeWrite = "write"

// ErrNotFound is returned when no active API key matches a hash.
var ErrNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
	Active  bool
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup and registration of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Upsert(ctx context.Context, key APIKeyInfo) error
}

// HashKey returns the HMAC-SHA256 of a raw API key under pepper.
func HashKey(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// HashKeyHex is HashKey encoded as lowercase hex, the stored form.
func HashKeyHex(pepper []byte, key string) string {
	return hex.EncodeToString(HashKey(pepper, key))
}
