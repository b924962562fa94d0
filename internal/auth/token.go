// Package auth signs and verifies identity assertions and gates protected
// routes on them.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinTokenTTL is the smallest lifetime Issue accepts. Token timestamps have
// second precision.
const MinTokenTTL = time.Second

var signingMethod = jwt.SigningMethodHS256

type tokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an assertion for subject and role, valid from now until now+ttl.
// now is truncated to the second, so identical inputs produce identical tokens.
func Issue(subject string, role Role, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: signing secret is required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("auth: unknown role %q", role)
	}
	if ttl < MinTokenTTL {
		return "", fmt.Errorf("auth: token ttl must be at least %s", MinTokenTTL)
	}

	issuedAt := now.Truncate(time.Second)
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
}

// Verify checks the token signature against secret and its expiry against now.
// It fails with ErrSignatureInvalid, ErrExpired or ErrMalformed; on failure the
// returned Assertion is always the zero value.
func Verify(tokenString string, secret []byte, now time.Time) (Assertion, error) {
	if len(secret) == 0 {
		return Assertion{}, ErrSignatureInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims tokenClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Assertion{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return Assertion{}, ErrExpired
		default:
			return Assertion{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !token.Valid {
		return Assertion{}, ErrMalformed
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Assertion{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if !claims.Role.Valid() {
		return Assertion{}, fmt.Errorf("%w: unknown role", ErrMalformed)
	}

	assertion := Assertion{
		Subject:   subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		assertion.IssuedAt = claims.IssuedAt.Time
	}
	return assertion, nil
}

// Codec binds the process-wide signing secret and token lifetime.
// It is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption customizes a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec constructs a Codec. The secret is copied.
func NewCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl < MinTokenTTL {
		return nil, fmt.Errorf("auth: token ttl must be at least %s", MinTokenTTL)
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs an assertion for subject and role using the codec's lifetime.
func (c *Codec) Issue(subject string, role Role) (string, error) {
	return Issue(subject, role, c.secret, c.ttl, c.now())
}

// Verify checks a token against the codec's secret at the current time.
func (c *Codec) Verify(tokenString string) (Assertion, error) {
	return Verify(tokenString, c.secret, c.now())
}

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
