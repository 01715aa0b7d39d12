package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vovakirdan/wirearena-server/internal/auth"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestHashTokenCommand(t *testing.T) {
	out, err := runCmd(t, "hash-token", "s3cret")
	if err != nil {
		t.Fatalf("hash-token failed: %v", err)
	}
	if err := auth.CompareToken(strings.TrimSpace(out), "s3cret"); err != nil {
		t.Fatalf("printed hash does not match token: %v", err)
	}
}

func TestHashTokenRequiresArg(t *testing.T) {
	if _, err := runCmd(t, "hash-token"); err == nil {
		t.Fatal("expected error without token argument")
	}
}
