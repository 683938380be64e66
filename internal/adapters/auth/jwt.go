// Package auth verifies the handshake credential and hands the gateway
// a user identity. Tokens are minted by the surrounding platform, the
// gateway only checks them.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWT verifies HS256 bearer tokens.
type JWT struct {
	secret []byte
	issuer string
}

var _ core.IdentityVerifier = (*JWT)(nil)

func NewJWT(secret, issuer string) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer}
}

func (j *JWT) Verify(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	token, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: incomplete token", domain.ErrAuth)
	}
	user, err := domain.NewUser(domain.UserID(claims.UserID), claims.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return user, nil
}
