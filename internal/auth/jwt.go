package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "atlas"

	// Subject is the only principal: the local user who owns the data dir.
	Subject = "local"
)

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AccessClaims struct {
	// Client labels the tool or script the token was issued for.
	Client string `json:"client,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager issues and checks the bearer tokens of the local HTTP API. The
// signing key lives in the secret store next to the data keys.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewJWTManager(secret []byte, expiry time.Duration) (*JWTManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: signing key must be at least 32 bytes")
	}
	return &JWTManager{secret: secret, expiry: expiry, now: time.Now}, nil
}

func (m *JWTManager) Issue(client string) (*Token, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	claims := AccessClaims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &Token{
		AccessToken: signed,
		ExpiresIn:   int64(m.expiry.Seconds()),
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

func (m *JWTManager) Validate(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithSubject(Subject), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return claims, nil
}
