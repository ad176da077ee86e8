package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateIDIsUniqueHex(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if len(id) != 24 {
			t.Fatalf("expected 24 hex chars, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewConnectionIDParsesAsUUID(t *testing.T) {
	t.Parallel()

	if _, err := uuid.Parse(NewConnectionID()); err != nil {
		t.Fatalf("expected uuid, got error %v", err)
	}
}
