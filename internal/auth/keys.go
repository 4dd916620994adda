package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost is the default cost for bcrypt hashing.
	bcryptCost = 10
)

// ErrInvalidKey is returned when a gateway key matches nothing configured.
var ErrInvalidKey = errors.New("invalid access key")

// HashKey generates a bcrypt hash of a gateway key for the config file.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// CompareKey compares a bcrypt hashed key with its plaintext version.
func CompareKey(hashedKey, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// KeyVerifier checks IDENTIFY keys against the configured allow-list.
// Entries may be plain shared secrets or bcrypt hashes. When a token secret
// is configured, signed remote tokens are accepted too.
type KeyVerifier struct {
	plain  [][]byte
	hashed []string
	jwt    *JWTConfig
}

// NewKeyVerifier builds a verifier. An empty tokenSecret disables tokens.
func NewKeyVerifier(keys []string, tokenSecret string) *KeyVerifier {
	v := &KeyVerifier{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if isBcrypt(k) {
			v.hashed = append(v.hashed, k)
		} else {
			v.plain = append(v.plain, []byte(k))
		}
	}
	if tokenSecret != "" {
		v.jwt = &JWTConfig{Secret: []byte(tokenSecret), Issuer: TokenIssuer}
	}
	return v
}

// Verify returns the identity behind key: "key" for shared secrets,
// the tool name for remote tokens.
func (v *KeyVerifier) Verify(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, p := range v.plain {
		if subtle.ConstantTimeCompare(p, []byte(key)) == 1 {
			return "key", nil
		}
	}
	for _, h := range v.hashed {
		if CompareKey(h, key) == nil {
			return "key", nil
		}
	}
	if v.jwt != nil && strings.Count(key, ".") == 2 {
		claims, err := ValidateToken(v.jwt, key)
		if err == nil {
			return claims.Tool, nil
		}
	}
	return "", ErrInvalidKey
}
