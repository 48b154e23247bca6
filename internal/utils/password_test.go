package utils

import "testing"

func TestHashPasswordArgon2(t *testing.T) {
	password := "test-password-123"
	hash, err := HashPasswordArgon2(password)
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}

	if hash == "" {
		t.Error("HashPasswordArgon2() returned empty hash")
	}

	// Hash should start with $argon2id$
	if len(hash) < 10 || hash[:10] != "$argon2id$" {
		t.Errorf("HashPasswordArgon2() hash format invalid: %s", hash)
	}

	// Salted: hashing the same password twice must differ
	hash2, err := HashPasswordArgon2(password)
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}
	if hash == hash2 {
		t.Error("HashPasswordArgon2() produced identical hashes for two calls")
	}
}

func TestVerifyPasswordArgon2(t *testing.T) {
	password := "test-password-123"
	hash, err := HashPasswordArgon2(password)
	if err != nil {
		t.Fatalf("HashPasswordArgon2() error = %v", err)
	}

	t.Run("valid password", func(t *testing.T) {
		valid, err := VerifyPasswordArgon2(password, hash)
		if err != nil {
			t.Fatalf("VerifyPasswordArgon2() error = %v", err)
		}
		if !valid {
			t.Error("VerifyPasswordArgon2() = false, want true")
		}
	})

	t.Run("invalid password", func(t *testing.T) {
		valid, err := VerifyPasswordArgon2("wrong-password", hash)
		if err != nil {
			t.Fatalf("VerifyPasswordArgon2() error = %v", err)
		}
		if valid {
			t.Error("VerifyPasswordArgon2() = true, want false")
		}
	})

	t.Run("invalid hash format", func(t *testing.T) {
		_, err := VerifyPasswordArgon2(password, "invalid-hash")
		if err == nil {
			t.Error("VerifyPasswordArgon2() error = nil, want error")
		}
	})
}
