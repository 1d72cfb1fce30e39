package idgen_test

import (
	"strings"
	"testing"

	"github.com/lbarthe/vidwatch/idgen"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := idgen.UUIDv7()
	seen := make(map[string]bool)
	for range 100 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNanoIDLength(t *testing.T) {
	gen := idgen.NanoID(12)
	id := gen()
	if len(id) != 12 {
		t.Fatalf("len = %d, want 12", len(id))
	}
}

func TestPrefixed(t *testing.T) {
	gen := idgen.Prefixed("tsk_", idgen.Default)
	id := gen()
	if !strings.HasPrefix(id, "tsk_") {
		t.Fatalf("id %q missing prefix", id)
	}
}

func TestParse(t *testing.T) {
	id := idgen.New()
	parsed, err := idgen.Parse(id)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Fatalf("got %q, want %q", parsed, id)
	}

	if _, err := idgen.Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
