package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/chanserv/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestHashKey(t *testing.T) {
	out, err := execute(t, "hash-key", "s3cret")
	if err != nil {
		t.Fatalf("hash-key: %v", err)
	}
	if err := auth.CompareKey(out, "s3cret"); err != nil {
		t.Fatalf("printed hash does not match: %v", err)
	}

	if _, err := execute(t, "hash-key"); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestIssueToken(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "chanserv.yaml")

	if _, err := execute(t, "issue-token", "webpanel", "--config", cfgPath); err == nil {
		t.Fatalf("expected error without a token secret")
	}

	t.Setenv("CHANSERV_GATEWAY_TOKEN_SECRET", "test-secret")
	out, err := execute(t, "issue-token", "webpanel", "--config", cfgPath)
	if err != nil {
		t.Fatalf("issue-token: %v", err)
	}
	who, err := auth.NewKeyVerifier(nil, "test-secret").Verify(out)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if who != "webpanel" {
		t.Fatalf("expected webpanel, got %q", who)
	}
}
