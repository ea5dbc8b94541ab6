package auth

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/models"
)

const issuer = "liveroom"

// Signer issues and verifies HS256 tokens for the development backend
type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner creates a signer for the given secret
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(secret), ttl: ttl}
}

// Issue generates a signed token for a user. An empty userID gets a fresh one.
func (s *Signer) Issue(userID, name string, role models.Role) (string, error) {
	if userID == "" {
		userID = uuid.NewString()
	}

	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Name: name,
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its claims
func (s *Signer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
