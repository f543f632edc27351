package gateway

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// Authenticator verifies the HS256 bearer tokens minted by the dashboard's
// auth service. The subject claim carries the user id.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates a verifier for the shared signing secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the user id. Every
// failure mode collapses into a single AuthError: callers must not leak
// whether a token was malformed, mis-signed, or expired.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", &domain.AuthError{Code: CodeAuthFailed}
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", &domain.AuthError{Code: CodeAuthFailed}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", &domain.AuthError{Code: CodeAuthFailed}
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", &domain.AuthError{Code: CodeAuthFailed}
	}
	return sub, nil
}
