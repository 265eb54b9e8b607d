package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for expired, malformed or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// tokenTypeRefresh marks long-lived tokens that can only be exchanged for a
// new access token, never presented as credentials themselves.
const tokenTypeRefresh = "refresh"

// Claims are the JWT claims carried by an access or refresh token.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HMAC-signed access and refresh tokens.
type TokenManager struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a token manager signing with the given secret.
func NewTokenManager(secret string, ttl, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, refreshTTL: refreshTTL}
}

// Issue signs a new token for the user.
func (m *TokenManager) Issue(u *User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// IssueRefresh signs a long-lived refresh token for the user. Refresh tokens
// carry a type claim so Verify rejects them as access credentials.
func (m *TokenManager) IssueRefresh(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, returning the user id it
// names. Refresh tokens are rejected.
func (m *TokenManager) Verify(tokenString string) (uuid.UUID, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.TokenType == tokenTypeRefresh {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// VerifyRefresh parses and validates a refresh token, returning the user id
// it names. Access tokens are rejected.
func (m *TokenManager) VerifyRefresh(tokenString string) (uuid.UUID, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (m *TokenManager) parse(tokenString string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
