package auth

import (
	"strings"
	"testing"
	"time"
)

func testUser() *User {
	return &User{
		ID:     "user-42",
		Email:  "a@x.com",
		Role:   RoleUser,
		Active: true,
	}
}

func newTestCodec(t *testing.T, opts ...CodecOption) *Codec {
	t.Helper()
	codec, err := NewCodec("test-secret", "authdesk", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func TestCodecSignAndVerify(t *testing.T) {
	codec := newTestCodec(t)

	token, expiresAt, err := codec.Sign(testUser(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}
	if !WellFormed(token) {
		t.Fatalf("issued token is not well-formed: %s", token)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "a@x.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.Role != RoleUser {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatalf("expected issued-at and expires-at claims")
	}
}

func TestCodecVerifyRejectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.Sign(testUser(), time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	segments := strings.Split(token, ".")
	tampered := segments[0] + "." + segments[1] + "A." + segments[2]
	if _, err := codec.Verify(tampered); err == nil {
		t.Fatalf("tampered payload verified")
	}

	other := newTestCodec(t)
	other.secret = []byte("other-secret")
	if _, err := other.Verify(token); err == nil {
		t.Fatalf("token verified under a different secret")
	}
}

func TestCodecVerifyRejectsMalformed(t *testing.T) {
	codec := newTestCodec(t)
	for _, token := range []string{
		"",
		"onlyonesegment",
		"two.segments",
		"a.b.c.d",
		"bad!chars.payload.sig",
		"..",
	} {
		if _, err := codec.Verify(token); err == nil {
			t.Fatalf("malformed token %q verified", token)
		}
	}
}

func TestCodecZeroTTLExpiresImmediately(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.Sign(testUser(), 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := codec.Verify(token); err == nil {
		t.Fatalf("zero-ttl token verified")
	}
}

func TestCodecVerifyFailsAfterExpiry(t *testing.T) {
	now := time.Now().UTC()
	current := now
	codec := newTestCodec(t, WithCodecClock(func() time.Time { return current }))

	token, _, err := codec.Sign(testUser(), time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := codec.Verify(token); err != nil {
		t.Fatalf("token invalid before expiry: %v", err)
	}

	current = now.Add(2 * time.Minute)
	if _, err := codec.Verify(token); err == nil {
		t.Fatalf("token verified after expiry")
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"aaa.bbb.ccc", true},
		{"abc-_.A1.z9", true},
		{"aaa.bbb", false},
		{"aaa.bbb.ccc.ddd", false},
		{"aaa..ccc", false},
		{"aaa.b+b.ccc", false},
		{"aaa.b=b.ccc", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := WellFormed(tc.token); got != tc.want {
			t.Fatalf("WellFormed(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	if _, err := NewCodec("  ", "authdesk"); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
