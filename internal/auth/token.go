package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cristalhq/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("no HMAC secret key set")
)

// Claims are the parts of a connection token this client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Expired reports whether claims carry an expiration in the past.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func claimsFrom(rc jwt.RegisteredClaims) Claims {
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	return c
}

// Inspect decodes token claims without verifying the signature. The server
// is the one verifying, the client only looks at expiration and subject.
func Inspect(t string) (Claims, error) {
	token, err := jwt.ParseNoVerify([]byte(t))
	if err != nil {
		return Claims{}, err
	}
	var rc jwt.RegisteredClaims
	if err := json.Unmarshal(token.Claims(), &rc); err != nil {
		return Claims{}, err
	}
	return claimsFrom(rc), nil
}

// GenerateHS256 builds a connection token for user signed with secret. Zero
// ttl means no expiration.
func GenerateHS256(secret string, user string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	signer, err := jwt.NewSignerHS(jwt.HS256, []byte(secret))
	if err != nil {
		return "", fmt.Errorf("error creating HMAC signer: %w", err)
	}
	claims := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Subject:  user,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token, err := jwt.NewBuilder(signer).Build(claims)
	if err != nil {
		return "", err
	}
	return token.String(), nil
}

// VerifyHS256 checks signature and expiration of token.
func VerifyHS256(secret string, t string) (Claims, error) {
	if secret == "" {
		return Claims{}, ErrNoSecret
	}
	verifier, err := jwt.NewVerifierHS(jwt.HS256, []byte(secret))
	if err != nil {
		return Claims{}, err
	}
	var rc jwt.RegisteredClaims
	if err := jwt.ParseClaims([]byte(t), verifier, &rc); err != nil {
		return Claims{}, err
	}
	now := time.Now()
	if !rc.IsValidExpiresAt(now) || !rc.IsValidNotBefore(now) {
		return Claims{}, ErrTokenExpired
	}
	return claimsFrom(rc), nil
}
