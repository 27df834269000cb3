// Package identity provides issuing and validation of caller identity tokens.
// The hosting platform authenticates end users and hands them a signed token
// carrying their principal ID, the service trusts the claim.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelclaims"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// Service defines object structure and its attributes.
type Service struct {
	key []byte
}

// NewIdentityService initializes an identity service with token signing functionality.
func NewIdentityService(c *config.SecretConfig) (*Service, error) {
	if c == nil {
		return nil, errors.New("nil secret configuration was found")
	}
	return &Service{key: []byte(c.SecretKey)}, nil
}

// NewPrincipal generates a fresh principal ID.
func (s *Service) NewPrincipal() string {
	return uuid.New().String()
}

// NewToken issues a signed identity token for a principal ID.
func (s *Service) NewToken(principalID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &modelclaims.IdentityClaims{
		PrincipalID: principalID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
		},
	})
	return token.SignedString(s.key)
}

// ValidateToken verifies a token signature and returns the embedded principal ID.
func (s *Service) ValidateToken(accessToken string) (string, error) {
	token, err := jwt.ParseWithClaims(accessToken, &modelclaims.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*modelclaims.IdentityClaims); ok && token.Valid {
		return claims.PrincipalID, nil
	}
	return "", errors.New("invalid access token")
}
