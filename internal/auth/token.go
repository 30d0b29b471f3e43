package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken   = errors.New("authorization header is missing")
	ErrMalformedToken = errors.New("authorization header format must be 'Bearer {token}'")
	ErrNoSubject      = errors.New("subject claim not found in token")
)

// ExtractTokenFromRequest returns the bearer token of r.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
		return "", ErrMalformedToken
	}
	return token, nil
}

// ExtractUserIDFromJWT reads the subject of a token without checking its
// signature; see UnverifiedVerifier.
func ExtractUserIDFromJWT(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}
