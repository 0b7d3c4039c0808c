package rate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Identifiers are hashed so key names never carry e-mail addresses.
func loginIdentifierKey(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return "pl:" + hex.EncodeToString(sum[:16])
}

func loginIPKey(ip string) string {
	return "pli:" + ip
}
