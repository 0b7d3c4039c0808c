package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T, cfg Config) *Hasher {
	t.Helper()
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHashProducesVerifiablePHC(t *testing.T) {
	h := newTestHasher(t, testConfig())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	other, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if other == hash {
		t.Fatal("expected a fresh salt per hash")
	}

	for secret, want := range map[string]bool{"P@ssw0rd-Ascii": true, "p@ssw0rd-ascii": false} {
		ok, err := h.Verify(secret, hash)
		if err != nil {
			t.Fatalf("Verify(%q) error: %v", secret, err)
		}
		if ok != want {
			t.Fatalf("Verify(%q) = %v, want %v", secret, ok, want)
		}
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 4096 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"max bytes":   func(c *Config) { c.MaxPasswordBytes = -1 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("%s: expected config rejected", name)
		}
	}
}

func TestHashLengthLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasswordBytes = 64
	h := newTestHasher(t, cfg)

	if _, err := h.Hash(""); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort for empty secret, got %v", err)
	}
	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("expected max-length secret accepted: %v", err)
	}
	if ok, err := h.Verify(exact, hash); err != nil || !ok {
		t.Fatalf("Verify failed for max-length secret: ok=%v err=%v", ok, err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to reject long secret, got %v", err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	h := newTestHasher(t, testConfig())

	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected secret > %d bytes rejected, got %v", DefaultMaxPasswordBytes, err)
	}
	if _, err := h.Hash(strings.Repeat("e", DefaultMaxPasswordBytes)); err != nil {
		t.Fatalf("expected secret of %d bytes accepted: %v", DefaultMaxPasswordBytes, err)
	}
}

func TestVerifyMalformedArgonHashes(t *testing.T) {
	h := newTestHasher(t, testConfig())
	hash, err := h.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	malformed := []string{
		"not-a-phc-hash",
		strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		strings.Replace(hash, "$v=19$", "$v=18$", 1),
		strings.Replace(hash, "m=65536,t=3,p=2", "m=65536,t=3", 1),
		strings.Replace(hash, "m=65536,t=3,p=2", "m=65536,t=3,p=2,x=1", 1),
		strings.Replace(hash, "m=65536", "m=1024", 1),
		strings.Replace(hash, "p=2", "p=300", 1),
		hash[:strings.LastIndex(hash, "$")] + "$!!!",
	}
	for _, encoded := range malformed {
		if _, err := h.Verify("version-test", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%q: expected ErrMalformedHash, got %v", encoded, err)
		}
	}
}

func TestNeedsRehashArgonParameters(t *testing.T) {
	weak := testConfig()
	weak.Memory = 32 * 1024
	weak.Time = 2
	weak.Parallelism = 1
	oldHash, err := newTestHasher(t, weak).Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	h := newTestHasher(t, testConfig())
	if ok, err := h.Verify("test-password", oldHash); err != nil || !ok {
		t.Fatalf("expected weaker hash to still verify: ok=%v err=%v", ok, err)
	}
	if !h.NeedsRehash(oldHash) {
		t.Fatal("expected weaker parameters to need rehash")
	}

	current, err := h.Hash("current-secret")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if h.NeedsRehash(current) {
		t.Fatal("expected current hash to not need rehash")
	}
	if h.NeedsRehash("not-a-hash") {
		t.Fatal("malformed hash should not report rehash")
	}
}

func TestHasherVerifiesLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t, testConfig())

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret-1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	ok, err := h.Verify("legacy-secret-1", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-secret-1", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected bcrypt mismatch without error: ok=%v err=%v", ok, err)
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Fatal("expected bcrypt hash to need rehash")
	}
	if _, err := h.Verify("whatever-secret", "$2a$bogus"); err == nil {
		t.Fatal("expected malformed bcrypt hash to error")
	}
}
