package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrMissingKey   = errors.New("jwt secret is not configured")
)

// JWTClaims represents the claims of a platform websocket token
type JWTClaims struct {
	AccountSid string `json:"account_sid,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for subject, valid for ttl
func GenerateToken(secret []byte, subject, accountSid string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingKey
	}

	now := time.Now()
	claims := &JWTClaims{
		AccountSid: accountSid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates an HS256 token and returns its claims
func ValidateToken(secret []byte, tokenString string) (*JWTClaims, error) {
	if len(secret) == 0 {
		return nil, ErrMissingKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
