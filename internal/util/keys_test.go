package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestCanonicalEqualTuples(t *testing.T) {
	a, err := Canonical([]any{"users", "u1", map[string]any{"b": 2, "a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonical([]any{"users", "u1", map[string]any{"a": 1, "b": 2}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("equal tuples encoded differently")
	}
}

func TestCanonicalOrderMatters(t *testing.T) {
	a, _ := Canonical([]any{"a", "b"})
	b, _ := Canonical([]any{"b", "a"})
	if bytes.Equal(a, b) {
		t.Fatalf("tuple order must be significant")
	}
}

func TestStorageKeyShape(t *testing.T) {
	canon, _ := Canonical([]any{"x"})
	k := StorageKey("fetch:users", canon)
	if !strings.HasPrefix(k, "fetch:users:") || len(k) != len("fetch:users:")+16 {
		t.Fatalf("unexpected storage key %q", k)
	}
}
