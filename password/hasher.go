package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher issues argon2id hashes and also accepts bcrypt hashes imported from
// older identity stores. Anything verified under bcrypt reports NeedsRehash.
type Hasher struct {
	argon    argon2id
	maxBytes int
}

// NewHasher validates cfg and builds a Hasher whose new hashes use it. A zero
// MaxPasswordBytes means DefaultMaxPasswordBytes.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Hasher{argon: argon2id{cfg: cfg}, maxBytes: cfg.MaxPasswordBytes}, nil
}

// Hash returns an argon2id PHC string. Secrets are hashed byte for byte, with
// no Unicode normalization.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < minSecretBytes {
		return "", ErrPasswordTooShort
	}
	if len(secret) > h.maxBytes {
		return "", ErrPasswordTooLong
	}
	return h.argon.hash(secret)
}

// Verify checks secret against an argon2id or bcrypt hash. A malformed hash
// is an error; a mismatch is not.
func (h *Hasher) Verify(secret, encodedHash string) (bool, error) {
	if len(secret) > h.maxBytes {
		return false, ErrPasswordTooLong
	}
	if !isBcrypt(encodedHash) {
		return h.argon.verify(secret, encodedHash)
	}

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsRehash reports whether a verified hash should be replaced.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	weaker, err := h.argon.weaker(encodedHash)
	return err == nil && weaker
}

func isBcrypt(encodedHash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encodedHash, prefix) {
			return true
		}
	}
	return false
}
