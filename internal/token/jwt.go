package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Kind separates session credentials from reset credentials so one can not
// be presented in place of the other.
type Kind string

const (
	KindSession Kind = "session"
	KindReset   Kind = "reset"
)

// Claims represents JWT claims with token kind. The identity id travels in
// the registered subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"typ"`
}

// Codec issues and verifies HMAC-signed expiring tokens.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec signing with the provided secret key.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subject valid for lifetime and returns it along
// with its expiry.
func (c *Codec) Issue(subject uuid.UUID, kind Kind, lifetime time.Duration) (string, time.Time, error) {
	if lifetime <= 0 {
		return "", time.Time{}, fmt.Errorf("token lifetime must be positive")
	}

	now := c.now()
	expiresAt := now.Add(lifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry and kind and returns the subject.
func (c *Codec) Verify(tokenString string, kind Kind) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return uuid.Nil, fmt.Errorf("%w: kind mismatch %q", ErrInvalidToken, claims.Kind)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return subject, nil
}
