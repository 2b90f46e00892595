// Package authn turns the bearer token on an inbound subscription
// request into the opaque authorization uint64 the frame model
// carries. It is a pass-through: validating the token's signature and
// shape, nothing more — the application route, not this adapter,
// decides what a given authorization value is allowed to do.
package authn

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "ssegate"
	secretEnvVariable = "SSE_AUTH_SECRET"
)

// ErrInvalidToken indicates the token failed validation or carried no
// usable authorization claim.
var ErrInvalidToken = errors.New("authn: invalid token")

var errMissingSecret = errors.New("authn: auth secret is not configured")

// Claims carries the single numeric claim the adapter cares about: an
// opaque authorization value the application side interprets, plus the
// registered claims needed to validate the token itself.
type Claims struct {
	Authorization uint64 `json:"az"`
	jwt.RegisteredClaims
}

var (
	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended
// for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}

// Issue signs a JWT carrying authorization for subject, for use by
// test harnesses and the operator tooling that mints tokens for
// downstream application routes.
func Issue(subject string, authorization uint64, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("authn: subject is required")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := Claims{
		Authorization: authorization,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, nil
}

// Decode extracts the authorization value from a "Bearer <token>"
// header value (or a bare token). An absent/empty header decodes to
// authorization 0, matching the adapter's opaque pass-through
// contract — the application route, not the adapter, enforces access.
func Decode(authorizationHeader string) (uint64, error) {
	token := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer"))
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return 0, err
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if claims.Issuer != issuer {
		return 0, ErrInvalidToken
	}
	return claims.Authorization, nil
}
