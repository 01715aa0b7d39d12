package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewServerIDIsUUID(t *testing.T) {
	a, b := NewServerID(), NewServerID()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("expected a uuid, got %q: %v", a, err)
	}
}

func TestServerIDOr(t *testing.T) {
	if got := ServerIDOr("eu-1"); got != "eu-1" {
		t.Fatalf("expected configured id, got %q", got)
	}
	if got := ServerIDOr(""); got == "" {
		t.Fatal("expected generated id")
	}
}
