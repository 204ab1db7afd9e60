package idgen

import "testing"

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	if len(id1) != 20 {
		t.Errorf("NewID() length = %d, want 20", len(id1))
	}
	if id1 == id2 {
		t.Errorf("NewID() returned duplicate: %q", id1)
	}
}

func TestNewRunID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if seen[id] {
			t.Fatalf("duplicate run id %q after %d iterations", id, i)
		}
		seen[id] = true
	}
}

func TestNewSecureSecret(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		s, err := NewSecureSecret(0)
		if err != nil {
			t.Fatalf("NewSecureSecret(0) error = %v", err)
		}
		if len(s) != 64 {
			t.Errorf("NewSecureSecret(0) hex length = %d, want 64", len(s))
		}
	})

	t.Run("explicit length", func(t *testing.T) {
		s, err := NewSecureSecret(16)
		if err != nil {
			t.Fatalf("NewSecureSecret(16) error = %v", err)
		}
		if len(s) != 32 {
			t.Errorf("NewSecureSecret(16) hex length = %d, want 32", len(s))
		}
	})

	t.Run("uniqueness", func(t *testing.T) {
		a, _ := NewSecureSecret(32)
		b, _ := NewSecureSecret(32)
		if a == b {
			t.Error("two secrets are identical")
		}
	})
}
