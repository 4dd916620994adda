package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyPlainAndHashed(t *testing.T) {
	hashed, err := HashKey("hashed-secret")
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}
	v := NewKeyVerifier([]string{"plain-secret", hashed, ""}, "")

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "plain", key: "plain-secret"},
		{name: "hashed", key: "hashed-secret"},
		{name: "hash itself is not a key", key: hashed, wantErr: true},
		{name: "wrong", key: "nope", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("expected ErrInvalidKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
		})
	}
}

func TestVerifyToken(t *testing.T) {
	secret := "test-secret-change-me"
	v := NewKeyVerifier(nil, secret)

	token, err := GenerateToken(&JWTConfig{Secret: []byte(secret), Issuer: TokenIssuer}, "webpanel")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	who, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if who != "webpanel" {
		t.Fatalf("expected tool webpanel, got %q", who)
	}

	forged, _ := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: TokenIssuer}, "webpanel")
	if _, err := v.Verify(forged); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("forged token accepted: %v", err)
	}

	expired, _ := GenerateToken(&JWTConfig{Secret: []byte(secret), Issuer: TokenIssuer, TTL: -time.Minute}, "webpanel")
	if _, err := v.Verify(expired); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expired token accepted: %v", err)
	}

	tokensOff := NewKeyVerifier([]string{"k"}, "")
	if _, err := tokensOff.Verify(token); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("token accepted with tokens disabled")
	}
}

func TestValidateTokenIssuer(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), Issuer: "someone-else"}
	token, err := GenerateToken(cfg, "tool")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("s"), Issuer: TokenIssuer}, token); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}
