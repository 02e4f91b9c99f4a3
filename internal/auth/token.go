package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime applied to tokens issued on login and
// registration when no override is configured.
const DefaultTokenTTL = time.Hour

// Claims is the claim set embedded in issued tokens. Subject carries the
// user id.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Role  RoleKind `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs claim sets into compact three-segment tokens and verifies them
// using HS256.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec signing with the given secret.
func NewCodec(secret, issuer string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured default token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Sign issues a token for the user with the given lifetime. A zero ttl
// produces a token that is already expired at issuance; callers wanting the
// configured default pass c.TTL().
func (c *Codec) Sign(user *User, ttl time.Duration) (string, time.Time, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify decodes the token and returns its claim set. It fails with
// ErrInvalidToken on a malformed token, a bad signature, or expiry. The
// structural check runs first so junk is rejected before any crypto work.
func (c *Codec) Verify(token string) (*Claims, error) {
	if !WellFormed(token) {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !c.now().UTC().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// WellFormed reports whether the token has the expected shape: exactly three
// non-empty dot-delimited segments drawn from the URL-safe base64 alphabet.
// It performs no cryptographic verification.
func WellFormed(token string) bool {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return false
	}
	for _, seg := range segments {
		if seg == "" {
			return false
		}
		for _, r := range seg {
			if !isBase64URLChar(r) {
				return false
			}
		}
	}
	return true
}

func isBase64URLChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}
