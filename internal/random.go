package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SessionID is the raw form of every opaque identifier handed to clients:
// session ids, pending-auth ids and remember-me tokens.
type SessionID [16]byte

const (
	opaqueTokenSize      = 32
	rememberCookieFields = 2
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewPendingID returns a fresh capability id for a parked login.
func NewPendingID() (string, error) {
	sid, err := NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}

// NewOpaqueToken returns 32 random bytes encoded as base64url.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the storage form of an opaque token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// EncodeRememberMeCookie packs identifier and token into one cookie value.
func EncodeRememberMeCookie(identifier, token string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(identifier)) + "." + token
}

// DecodeRememberMeCookie is the inverse of EncodeRememberMeCookie.
func DecodeRememberMeCookie(value string) (identifier string, token string, err error) {
	parts := strings.SplitN(value, ".", rememberCookieFields)
	if len(parts) != rememberCookieFields || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid remember-me cookie")
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", errors.New("invalid remember-me cookie")
	}
	return string(raw), parts[1], nil
}
