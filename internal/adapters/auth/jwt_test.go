package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/domain"
)

const testSecret = "unit-secret"

func mint(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTVerifyAccepts(t *testing.T) {
	req := require.New(t)
	v := NewJWT(testSecret, "")

	credential := mint(t, testSecret, jwt.SigningMethodHS256, Claims{
		UserID: "alice",
		Name:   "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	user, err := v.Verify(context.Background(), credential)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), user.ID)
	req.Equal("Alice", user.Name)
}

func TestJWTVerifyRejects(t *testing.T) {
	future := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]struct {
		verifier   *JWT
		credential func(t *testing.T) string
	}{
		"empty token": {
			verifier:   NewJWT(testSecret, ""),
			credential: func(*testing.T) string { return "" },
		},
		"garbage token": {
			verifier:   NewJWT(testSecret, ""),
			credential: func(*testing.T) string { return "not.a.jwt" },
		},
		"wrong secret": {
			verifier: NewJWT(testSecret, ""),
			credential: func(t *testing.T) string {
				return mint(t, "other-secret", jwt.SigningMethodHS256, Claims{UserID: "alice", RegisteredClaims: future})
			},
		},
		"expired": {
			verifier: NewJWT(testSecret, ""),
			credential: func(t *testing.T) string {
				return mint(t, testSecret, jwt.SigningMethodHS256, Claims{
					UserID:           "alice",
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
				})
			},
		},
		"missing user id": {
			verifier: NewJWT(testSecret, ""),
			credential: func(t *testing.T) string {
				return mint(t, testSecret, jwt.SigningMethodHS256, Claims{RegisteredClaims: future})
			},
		},
		"unexpected signing method": {
			verifier: NewJWT(testSecret, ""),
			credential: func(t *testing.T) string {
				return mint(t, testSecret, jwt.SigningMethodHS512, Claims{UserID: "alice", RegisteredClaims: future})
			},
		},
		"issuer mismatch": {
			verifier: NewJWT(testSecret, "pulse"),
			credential: func(t *testing.T) string {
				return mint(t, testSecret, jwt.SigningMethodHS256, Claims{
					UserID:           "alice",
					RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
				})
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tc.verifier.Verify(context.Background(), tc.credential(t))
			require.ErrorIs(t, err, domain.ErrAuth)
		})
	}
}

func TestJWTVerifyChecksConfiguredIssuer(t *testing.T) {
	req := require.New(t)
	v := NewJWT(testSecret, "pulse")
	credential := mint(t, testSecret, jwt.SigningMethodHS256, Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pulse",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	user, err := v.Verify(context.Background(), credential)
	req.NoError(err)
	req.Equal(domain.UserID("alice"), user.ID)
}

func TestInsecureVerify(t *testing.T) {
	req := require.New(t)
	v := Insecure{}

	user, err := v.Verify(context.Background(), "bob")
	req.NoError(err)
	req.Equal(domain.UserID("bob"), user.ID)

	_, err = v.Verify(context.Background(), "")
	req.ErrorIs(err, domain.ErrAuth)
}
