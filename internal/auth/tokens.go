package auth

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"

	"github.com/kprasolov/betledger/internal/domain"
)

const (
	// kdfIterations matches the keymanager's PBKDF2 cost, so both secret
	// consumers share one security parameter.
	kdfIterations = 480_000
	signingKeyLen = 32
)

// TokenIssuer mints and verifies the HS256 bearer tokens handed out after a
// successful wallet login. The HMAC key is derived from the configured
// secret; the raw secret itself never signs anything.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer derives the signing key from secret and salt and returns an
// issuer whose tokens live for ttl.
func NewTokenIssuer(secret, salt []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:    pbkdf2.Key(secret, salt, kdfIterations, signingKeyLen, sha256.New),
		issuer: issuer,
		ttl:    ttl,
	}
}

// Issue returns a signed token for identity together with its expiry.
func (t *TokenIssuer) Issue(identity domain.Identity, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   identity.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a bearer token and returns the identity it was
// issued to.
func (t *TokenIssuer) Verify(token string) (domain.Identity, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return t.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("auth: %v: %w", err, domain.ErrUnauthenticated)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("auth: token carries no subject: %w", domain.ErrUnauthenticated)
	}
	return domain.Identity(claims.Subject), nil
}
