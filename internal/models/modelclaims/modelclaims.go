// Package modelclaims provides types for token authorization.
package modelclaims

import "github.com/golang-jwt/jwt"

type IdentityClaims struct {
	PrincipalID string `json:"principalID"`
	jwt.StandardClaims
}
