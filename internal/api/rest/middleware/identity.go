// Package middleware provides various middleware functionality.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/service/identity"
)

// TokenHandler sets object structure.
type TokenHandler struct {
	ids *identity.Service
	cfg *config.SecretConfig
}

// NewTokenHandler initializes a new token handler.
func NewTokenHandler(ids *identity.Service, cfg *config.SecretConfig) (*TokenHandler, error) {
	if ids == nil {
		return nil, errors.New("nil identity service object was found")
	}
	return &TokenHandler{
		ids: ids,
		cfg: cfg,
	}, nil
}

// TokenHandle provides token handling functionality.
func (c *TokenHandler) TokenHandle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if len(tokenString) == 0 {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		tokenString = strings.Replace(tokenString, "Bearer ", "", 1)
		_, err := c.ids.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
