package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/identity-system/internal/core/domain"
)

func newTestHasher(t *testing.T) *BcryptHasher {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestNewBcryptHasher_DefaultCost(t *testing.T) {
	h, err := NewBcryptHasher(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Cost() != DefaultCost {
		t.Fatalf("expected cost %d, got %d", DefaultCost, h.Cost())
	}
}

func TestNewBcryptHasher_RejectsOutOfRangeCost(t *testing.T) {
	for _, cost := range []int{1, bcrypt.MaxCost + 1, -5} {
		if _, err := NewBcryptHasher(cost); err == nil {
			t.Fatalf("expected error for cost %d", cost)
		}
	}
}

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	for _, pw := range []string{"pw123456", "pässwörd-ünïcode", "x", ""} {
		hash, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("hash %q: %v", pw, err)
		}
		if hash == pw {
			t.Fatalf("hash must not equal plaintext")
		}
		ok, err := h.Verify(pw, hash)
		if err != nil || !ok {
			t.Fatalf("verify(%q) = %v, %v; want true", pw, ok, err)
		}
	}
}

func TestBcryptHasher_WrongPassword(t *testing.T) {
	h := newTestHasher(t)
	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := h.Verify("battery staple", hash)
	if err != nil {
		t.Fatalf("mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestBcryptHasher_Salted(t *testing.T) {
	h := newTestHasher(t)
	a, _ := h.Hash("same-input")
	b, _ := h.Hash("same-input")
	if a == b {
		t.Fatalf("two hashes of the same input must differ")
	}
}

func TestBcryptHasher_EmbeddedCostWins(t *testing.T) {
	low := newTestHasher(t)
	hash, err := low.Hash("pw123456")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	high, err := NewBcryptHasher(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	ok, err := high.Verify("pw123456", hash)
	if err != nil || !ok {
		t.Fatalf("verify across costs = %v, %v", ok, err)
	}
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	h := newTestHasher(t)

	for _, bad := range []string{"", "not-a-hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"} {
		ok, err := h.Verify("pw", bad)
		if ok {
			t.Fatalf("malformed hash %q verified", bad)
		}
		if !errors.Is(err, domain.ErrHashing) {
			t.Fatalf("expected ErrHashing for %q, got %v", bad, err)
		}
	}
}

func TestBcryptHasher_RejectsUnhashableInput(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash(string([]byte{0xff, 0xfe})); !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing for invalid UTF-8, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 73)); !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing for long input, got %v", err)
	}
}

func TestBcryptHasher_OverlongCandidateNeverMatches(t *testing.T) {
	h := newTestHasher(t)
	stored := strings.Repeat("a", 72)
	hash, err := h.Hash(stored)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := h.Verify(stored, hash)
	if err != nil || !ok {
		t.Fatalf("expected the exact password to match, got %v, %v", ok, err)
	}

	ok, err = h.Verify(stored+"EXTRA", hash)
	if err != nil {
		t.Fatalf("overlong candidate must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("candidate sharing the first 72 bytes must not match")
	}
}
