package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// APIKeyHeader carries the raw API key.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Require returns a middleware that rejects requests whose API key is
// missing, unknown or lacks scope.
func (s *SecurityHandler) Require(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			info, err := s.authenticate(r, key)
			if err != nil {
				if !errors.Is(err, auth.ErrNotFound) {
					zctx.From(r.Context()).Warn("API key lookup failed", zap.Error(err))
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !info.HasScope(scope) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate hashes key, looks it up and compares the stored hash in
// constant time.
func (s *SecurityHandler) authenticate(r *http.Request, key string) (*auth.APIKeyInfo, error) {
	hash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if err != nil {
		return nil, err
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, auth.ErrNotFound
	}
	return info, nil
}
