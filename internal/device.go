package internal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint hashes client signals into a stable device identifier.
// Equal inputs always yield equal output; nothing is stored. Each signal is
// length-prefixed, so no byte inside one can shift the boundary to the next.
func Fingerprint(userAgent, networkAddress, extra string) string {
	h := sha256.New()
	var size [4]byte
	for _, signal := range []string{userAgent, networkAddress, extra} {
		binary.BigEndian.PutUint32(size[:], uint32(len(signal)))
		h.Write(size[:])
		h.Write([]byte(signal))
	}
	return hex.EncodeToString(h.Sum(nil))
}
