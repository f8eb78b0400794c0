// Package token issues and verifies JSON Web Tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind separates access tokens from refresh tokens so one cannot stand in for the other.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

// JWTManager signs and verifies tokens with a shared HMAC secret.
type JWTManager struct {
	secretKey       []byte
	accessTokenDur  time.Duration
	refreshTokenDur time.Duration
}

// CustomClaims carries the authenticated username.
type CustomClaims struct {
	Username string `json:"username"`
	Kind     Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a JWTManager. Access tokens live for the given hours,
// refresh tokens for the given days.
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secret),
		accessTokenDur:  time.Hour * time.Duration(accessTokenExpireHours),
		refreshTokenDur: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
	}
}

// GenerateToken issues an access token for username.
func (m *JWTManager) GenerateToken(username string) (string, error) {
	return m.sign(username, Access, m.accessTokenDur)
}

// GenerateRefreshToken issues a longer-lived refresh token for username.
func (m *JWTManager) GenerateRefreshToken(username string) (string, error) {
	return m.sign(username, Refresh, m.refreshTokenDur)
}

func (m *JWTManager) sign(username string, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// VerifyToken parses tokenString and checks its signature, expiry and kind.
func (m *JWTManager) VerifyToken(tokenString string, kind Kind) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Kind != kind {
		return nil, errors.New("wrong token kind")
	}
	return claims, nil
}
