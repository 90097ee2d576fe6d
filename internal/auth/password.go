// Package auth implements password hashing and signed session tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Supported hashing methods.
const (
	MethodPBKDF2   = "pbkdf2"
	MethodBcrypt   = "bcrypt"
	MethodArgon2id = "argon2id"
)

const (
	// DefaultPBKDF2Iterations matches the current werkzeug default for pbkdf2:sha256.
	DefaultPBKDF2Iterations = 600000
	// MinPBKDF2Iterations is the lowest iteration count accepted for new hashes.
	MinPBKDF2Iterations = 100000

	saltLength   = 16
	saltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

var (
	// ErrUnknownMethod is returned for an unsupported hashing method name.
	ErrUnknownMethod = errors.New("unknown password hash method")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher produces and checks salted password hashes.
//
// New hashes use the configured method. Check accepts any supported encoding
// so that stored hashes keep working after the method changes:
//
//	pbkdf2:sha256:<iterations>$<salt>$<hex digest>    (werkzeug compatible)
//	$2a$... / $2b$...                                 (bcrypt)
//	$argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>
type Hasher struct {
	method     string
	iterations int
}

// NewHasher returns a Hasher for method. iterations applies to pbkdf2 only;
// zero selects DefaultPBKDF2Iterations.
func NewHasher(method string, iterations int) (*Hasher, error) {
	switch method {
	case "", MethodPBKDF2:
		method = MethodPBKDF2
	case MethodBcrypt, MethodArgon2id:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if iterations == 0 {
		iterations = DefaultPBKDF2Iterations
	}
	if method == MethodPBKDF2 && iterations < MinPBKDF2Iterations {
		return nil, fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", MinPBKDF2Iterations, iterations)
	}
	return &Hasher{method: method, iterations: iterations}, nil
}

// Method returns the method used for new hashes.
func (h *Hasher) Method() string { return h.method }

// Hash returns the encoded hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	switch h.method {
	case MethodBcrypt:
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case MethodArgon2id:
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return "", err
		}
		key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version, argonMemory, argonTime, argonThreads,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(key),
		), nil
	default:
		salt, err := randomSalt(saltLength)
		if err != nil {
			return "", err
		}
		sum := pbkdf2.Key([]byte(password), []byte(salt), h.iterations, sha256.Size, sha256.New)
		return fmt.Sprintf("pbkdf2:sha256:%d$%s$%s", h.iterations, salt, hex.EncodeToString(sum)), nil
	}
}

// Check reports whether password matches the encoded hash. A malformed or
// empty hash never matches.
func (h *Hasher) Check(encoded, password string) bool {
	ok, err := check(encoded, password)
	return err == nil && ok
}

func check(encoded, password string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "pbkdf2:"):
		return checkPBKDF2(encoded, password)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil, nil
	case strings.HasPrefix(encoded, "$argon2id$"):
		return checkArgon2id(encoded, password)
	default:
		return false, ErrMalformedHash
	}
}

func checkPBKDF2(encoded, password string) (bool, error) {
	method, salt, digest, ok := split3(encoded, "$")
	if !ok {
		return false, ErrMalformedHash
	}
	parts := strings.Split(method, ":")
	if len(parts) != 3 || parts[1] != "sha256" {
		return false, ErrMalformedHash
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false, ErrMalformedHash
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(want), sha256.New)
	return ConstantTimeCompare(got, want), nil
}

func checkArgon2id(encoded, password string) (bool, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return ConstantTimeCompare(got, want), nil
}

func split3(s, sep string) (string, string, string, bool) {
	parts := strings.SplitN(s, sep, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func randomSalt(n int) (string, error) {
	limit := big.NewInt(int64(len(saltAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = saltAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
