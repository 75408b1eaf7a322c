package v1

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DevUserHeader carries a user id without a token. Honored only in dev mode.
const DevUserHeader = "X-User-ID"

// Authenticator verifies session tokens issued by the auth provider.
// The token subject is the opaque user id.
type Authenticator struct {
	secret         []byte
	allowDevHeader bool
}

// NewAuthenticator creates an authenticator. With an empty secret every bearer token is rejected.
func NewAuthenticator(secret string, allowDevHeader bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), allowDevHeader: allowDevHeader}
}

// Authenticate resolves the user id from the Authorization header, falling back
// to the development header when permitted.
func (a *Authenticator) Authenticate(authHeader, devUser string) (string, error) {
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return a.verify(strings.TrimSpace(token))
	}
	if a.allowDevHeader && strings.TrimSpace(devUser) != "" {
		return strings.TrimSpace(devUser), nil
	}
	return "", fmt.Errorf("missing bearer token")
}

func (a *Authenticator) verify(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("token verification is not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}
