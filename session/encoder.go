package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

const (
	flagAdmin      byte = 1 << 0
	flagRememberMe byte = 1 << 1
)

// Encode serializes s into the versioned binary record stored in Redis.
// SessionID is the key and is not part of the record.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeString(&buf, s.Identifier); err != nil {
		return nil, err
	}
	if len(s.Role) > 255 {
		return nil, errors.New("role too long")
	}
	buf.WriteByte(byte(len(s.Role)))
	buf.WriteString(s.Role)

	var flags byte
	if s.Admin {
		flags |= flagAdmin
	}
	if s.RememberMe {
		flags |= flagRememberMe
	}
	buf.WriteByte(flags)

	for _, v := range []int64{s.TimeoutSeconds, s.CreatedAt, s.LastSeenAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.Identifier, err = readString(reader); err != nil {
		return nil, err
	}

	roleLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	role := make([]byte, roleLen)
	if _, err := io.ReadFull(reader, role); err != nil {
		return nil, err
	}
	s.Role = string(role)

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Admin = flags&flagAdmin != 0
	s.RememberMe = flags&flagRememberMe != 0

	for _, dst := range []*int64{&s.TimeoutSeconds, &s.CreatedAt, &s.LastSeenAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}
	if s.TimeoutSeconds <= 0 {
		return nil, errors.New("invalid session timeout")
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("identifier too long")
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
