package password_test

import (
	"strings"
	"testing"

	"github.com/nexlify/user-accounts/internal/password"
)

func TestHashAndVerify(t *testing.T) {
	h := password.NewHasher()

	digest, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if digest == "secret123" || strings.Contains(digest, "secret123") {
		t.Fatal("Digest must not contain the plaintext")
	}

	if !h.Verify("secret123", digest) {
		t.Fatal("Expected matching password to verify")
	}
	if h.Verify("wrong-password", digest) {
		t.Fatal("Expected non-matching password to fail")
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := password.NewHasher()

	a, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatal("Expected distinct digests for the same plaintext")
	}
}

func TestVerify_MalformedDigest(t *testing.T) {
	h := password.NewHasher()

	for _, digest := range []string{"", "not-a-digest", "$argon2id$v=19$garbage"} {
		if h.Verify("secret123", digest) {
			t.Fatalf("Verify against %q: expected false", digest)
		}
	}
}
