package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies an API client allowed to pre-register and query orders.
type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenGenerator mints and validates API client tokens.
type TokenGenerator interface {
	GenerateClientToken(clientID string) (token string, expiresAt time.Time, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

// CallbackVerifier checks the shared secret carried by gateway callbacks.
type CallbackVerifier interface {
	Verify(token string) bool
}

type JWTTokenGenerator struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	now    func() time.Time
}

type IssuedToken struct {
	ClientID  string    `json:"client_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrEmptySecret  = errors.New("callback secret is not configured")
)
