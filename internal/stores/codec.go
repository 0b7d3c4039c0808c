package stores

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"github.com/MrEthical07/portalauth/internal"
)

func newOpaqueID() (string, error) {
	return internal.NewPendingID()
}

func newSecretToken() (string, [32]byte, error) {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return "", [32]byte{}, err
	}
	return token, internal.HashToken(token), nil
}

func tokenMatches(stored [32]byte, presented string) bool {
	h := internal.HashToken(presented)
	return subtle.ConstantTimeCompare(stored[:], h[:]) == 1
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
