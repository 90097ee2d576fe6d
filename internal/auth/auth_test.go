package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T, method string) *Hasher {
	t.Helper()
	h, err := NewHasher(method, MinPBKDF2Iterations)
	require.NoError(t, err)
	return h
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("", 0)
	require.NoError(t, err)
	assert.Equal(t, MethodPBKDF2, h.Method())
	assert.Equal(t, DefaultPBKDF2Iterations, h.iterations)

	_, err = NewHasher("md5", 0)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = NewHasher(MethodPBKDF2, 1000)
	assert.Error(t, err)
}

func TestHasher_RoundTrip(t *testing.T) {
	for _, method := range []string{MethodPBKDF2, MethodBcrypt, MethodArgon2id} {
		t.Run(method, func(t *testing.T) {
			h := newTestHasher(t, method)

			encoded, err := h.Hash("pw123")
			require.NoError(t, err)
			assert.NotContains(t, encoded, "pw123")

			assert.True(t, h.Check(encoded, "pw123"))
			assert.False(t, h.Check(encoded, "pw124"), "one character off")
			assert.False(t, h.Check(encoded, "pw12"), "prefix")
			assert.False(t, h.Check(encoded, "pw1234"), "suffix")
			assert.False(t, h.Check(encoded, ""))
		})
	}
}

func TestHasher_SaltIsRandom(t *testing.T) {
	h := newTestHasher(t, MethodPBKDF2)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "pbkdf2:sha256:100000$"))
}

func TestHasher_ChecksOtherMethods(t *testing.T) {
	// A pbkdf2 hasher still verifies stored bcrypt hashes.
	h := newTestHasher(t, MethodPBKDF2)
	b, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, h.Check(string(b), "secret"))
	assert.False(t, h.Check(string(b), "Secret"))
}

func TestHasher_WerkzeugHash(t *testing.T) {
	// Produced by werkzeug generate_password_hash("pw123", "pbkdf2:sha256:1000")
	// with salt "abcdefgh".
	const stored = "pbkdf2:sha256:1000$abcdefgh$0dc39101fb5b214d30402588cb2f2ab9bf0dcf13334be6b56e4463c8da5c612f"

	h := newTestHasher(t, MethodPBKDF2)
	assert.True(t, h.Check(stored, "pw123"))
	assert.False(t, h.Check(stored, "pw124"))

	encoded, err := h.Hash("pw123")
	require.NoError(t, err)
	method, salt, digest, ok := split3(encoded, "$")
	require.True(t, ok)
	assert.Equal(t, "pbkdf2:sha256:100000", method)
	assert.Len(t, salt, saltLength)
	assert.Len(t, digest, 64)
}

func TestHasher_MalformedNeverMatches(t *testing.T) {
	h := newTestHasher(t, MethodPBKDF2)
	for _, encoded := range []string{
		"",
		"plaintext",
		"pbkdf2:sha256$salt$00",
		"pbkdf2:md5:1000$salt$00",
		"pbkdf2:sha256:abc$salt$00",
		"pbkdf2:sha256:1000$salt$zz",
		"$argon2id$v=19$m=65536,t=1,p=4$salt",
		"$argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
	} {
		assert.False(t, h.Check(encoded, ""), encoded)
		_, err := check(encoded, "")
		assert.Error(t, err, encoded)
	}
}

func TestTokens_SignAndParse(t *testing.T) {
	tokens := NewTokens([]byte("super-secret"))

	tok, err := tokens.Sign(42, "session-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "session-1", claims.ID)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens([]byte("secret"))
	tok, err := tokens.Sign(1, "s", time.Now().Add(-time.Second))
	require.NoError(t, err)

	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_WrongSecret(t *testing.T) {
	tok, err := NewTokens([]byte("right-secret")).Sign(1, "s", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = NewTokens([]byte("wrong-secret")).Parse(tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokens_Malformed(t *testing.T) {
	_, err := NewTokens([]byte("k")).Parse("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokens_ClockInjected(t *testing.T) {
	tokens := NewTokens([]byte("k"))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return base }

	tok, err := tokens.Sign(7, "s", base.Add(time.Minute))
	require.NoError(t, err)

	tokens.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
