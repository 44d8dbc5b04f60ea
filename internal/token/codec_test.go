package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock はテスト用に進められる時計。
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	codec, err := NewCodec(key, opts...)
	require.NoError(t, err)
	return codec
}

func TestGenerateKey_ReturnsDistinctKeysOfKeySize(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Len(t, k2, KeySize)
	assert.NotEqual(t, k1, k2)
}

func TestNewCodec_RejectsShortKey(t *testing.T) {
	_, err := NewCodec([]byte("too-short"))
	require.Error(t, err)
}

func TestIssue_DecodeSubject_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	subjects := []string{"alice", "google_12345", "kakao_987654321", "user@example.com", "한글_아이디"}
	for _, s := range subjects {
		t.Run(s, func(t *testing.T) {
			tok, err := codec.Issue(s)
			require.NoError(t, err)

			got, err := codec.DecodeSubject(tok)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		})
	}
}

func TestIssue_HasThreeSegmentsAndHS512Header(t *testing.T) {
	codec := newTestCodec(t)

	tok, err := codec.Issue("alice")
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)

	parsed, _, err := jwt.NewParser().ParseUnverified(tok, &jwt.RegisteredClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS512", parsed.Header["alg"])
}

func TestIssue_EmptySubject_ReturnsError(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Issue("")
	require.Error(t, err)
}

func TestIssue_NeverReusesToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, WithClock(clock.Now))

	// 同一時刻に発行しても別トークンになること
	t1, err := codec.Issue("alice")
	require.NoError(t, err)
	t2, err := codec.Issue("alice")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestDecode_ExpiryIsTwentyFourHoursAfterIssue(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, WithClock(clock.Now))

	tok, err := codec.Issue("alice")
	require.NoError(t, err)

	claims, err := codec.Decode(tok)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Equal(clock.now))
	assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt))
}

func TestVerify_ValidUntilExpiryThenInvalid(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, WithClock(clock.Now))

	tok, err := codec.Issue("alice")
	require.NoError(t, err)
	assert.True(t, codec.Verify(tok))

	clock.Advance(TTL - time.Second)
	assert.True(t, codec.Verify(tok), "token should still be valid just before expiry")

	clock.Advance(2 * time.Second)
	assert.False(t, codec.Verify(tok), "token should be invalid after expiry")

	_, err = codec.DecodeSubject(tok)
	var tokenErr *TokenError
	require.True(t, errors.As(err, &tokenErr))
	assert.Equal(t, ReasonExpired, tokenErr.Reason)
}

func TestVerify_ReturnsFalseForBadInput(t *testing.T) {
	codec := newTestCodec(t)
	other := newTestCodec(t)

	foreign, err := other.Issue("alice")
	require.NoError(t, err)

	valid, err := codec.Issue("alice")
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	expiredCodec := newTestCodec(t, WithClock(func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	}))
	expired, err := expiredCodec.Issue("alice")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":             "",
		"garbage":           "not-a-jwt",
		"dots":              "a.b.c",
		"other key":         foreign,
		"tampered":          tampered,
		"expired":           expired,
		"alg none":          unsigned,
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, codec.Verify(tok))
			})

			_, err := codec.DecodeSubject(tok)
			var tokenErr *TokenError
			assert.True(t, errors.As(err, &tokenErr), "expected *TokenError, got %v", err)
		})
	}
}

func TestDecodeSubject_ForeignKey_ReportsSignatureReason(t *testing.T) {
	codec := newTestCodec(t)
	other := newTestCodec(t)

	tok, err := other.Issue("alice")
	require.NoError(t, err)

	_, err = codec.DecodeSubject(tok)
	var tokenErr *TokenError
	require.True(t, errors.As(err, &tokenErr))
	assert.Equal(t, ReasonSignature, tokenErr.Reason)
}

func FuzzVerify_NeverPanics(f *testing.F) {
	key := make([]byte, KeySize)
	codec, err := NewCodec(key)
	if err != nil {
		f.Fatal(err)
	}
	valid, _ := codec.Issue("alice")

	f.Add(valid)
	f.Add("")
	f.Add("not-a-jwt")
	f.Add("a.b.c")
	f.Add(strings.Repeat("a", 4096))

	f.Fuzz(func(t *testing.T, raw string) {
		ok := codec.Verify(raw)
		subject, err := codec.DecodeSubject(raw)
		if ok != (err == nil) {
			t.Fatalf("Verify=%v but DecodeSubject err=%v", ok, err)
		}
		if ok && subject == "" {
			t.Fatal("valid token must carry a subject")
		}
	})
}
