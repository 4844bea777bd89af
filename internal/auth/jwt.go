package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexalabs/nexa-server/domain/entities"
)

// tokenLifetime is how long a session token stays valid. Logging out
// discards the token client-side; there is no server-side revocation list.
const tokenLifetime = 24 * time.Hour

// SessionClaims carries the authenticated identity inside a session token.
type SessionClaims struct {
	DisplayName string `json:"display_name"`
	Mobile      string `json:"mobile"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and validates session tokens.
type Signer struct {
	secret []byte
}

// NewSignerFromEnv builds a signer from the JWT_SECRET environment
// variable. An empty secret is rejected rather than defaulted; tokens
// signed with a guessable key are worse than no auth at all.
func NewSignerFromEnv() (*Signer, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// GenerateSessionToken issues a token for an authenticated identity.
func (s *Signer) GenerateSessionToken(identity entities.UserIdentity) (string, time.Time, error) {
	expiresAt := time.Now().Add(tokenLifetime)
	claims := &SessionClaims{
		DisplayName: identity.DisplayName,
		Mobile:      identity.Mobile,
		Role:        string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses a session token and returns the identity it carries.
func (s *Signer) ValidateToken(tokenString string) (*entities.UserIdentity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	identity := entities.UserIdentity{
		DisplayName: claims.DisplayName,
		Mobile:      claims.Mobile,
		Role:        entities.Role(claims.Role),
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return &identity, nil
}
