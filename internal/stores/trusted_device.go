package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const trustedDeviceRecordVersion1 = 1

var ErrTrustedDeviceBackend = errors.New("trusted device backend unavailable")

// TrustedDevice is a fingerprint that skips the second factor until ExpiresAt.
type TrustedDevice struct {
	Identifier  string
	Fingerprint string
	TokenHash   [32]byte
	ExpiresAt   time.Time
}

// TrustedDeviceStore keeps one record per (identifier, fingerprint) plus a set
// index per identifier so every device of a principal can be revoked at once.
type TrustedDeviceStore struct {
	redis    redis.UniversalClient
	prefix   string
	validity time.Duration
	now      func() time.Time
}

var revokeDevicesLua = redis.NewScript(`
local members = redis.call("SMEMBERS", KEYS[1])
for _, fp in ipairs(members) do
	redis.call("DEL", ARGV[1] .. fp)
end
redis.call("DEL", KEYS[1])
return #members
`)

func NewTrustedDeviceStore(redisClient redis.UniversalClient, prefix string, validity time.Duration) *TrustedDeviceStore {
	if prefix == "" {
		prefix = "ptd"
	}
	if validity <= 0 {
		validity = 30 * 24 * time.Hour
	}
	return &TrustedDeviceStore{
		redis:    redisClient,
		prefix:   prefix,
		validity: validity,
		now:      time.Now,
	}
}

func (s *TrustedDeviceStore) deviceKeyPrefix(identifier string) string {
	return s.prefix + ":d:" + identifier + ":"
}

func (s *TrustedDeviceStore) indexKey(identifier string) string {
	return s.prefix + ":i:" + identifier
}

// Trust records the fingerprint as trusted for the configured validity and
// returns the opaque issuance token. Re-trusting a device renews it.
func (s *TrustedDeviceStore) Trust(ctx context.Context, identifier, fingerprint string) (string, error) {
	if identifier == "" || fingerprint == "" {
		return "", errors.New("identifier and fingerprint are required")
	}
	token, hash, err := newSecretToken()
	if err != nil {
		return "", err
	}
	record := &TrustedDevice{
		Identifier:  identifier,
		Fingerprint: fingerprint,
		TokenHash:   hash,
		ExpiresAt:   s.now().Add(s.validity),
	}
	encoded, err := encodeTrustedDevice(record)
	if err != nil {
		return "", err
	}

	index := s.indexKey(identifier)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.deviceKeyPrefix(identifier)+fingerprint, encoded, s.validity)
		pipe.SAdd(ctx, index, fingerprint)
		pipe.Expire(ctx, index, s.validity)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	return token, nil
}

// IsTrusted reports whether the fingerprint has an unexpired trust record.
func (s *TrustedDeviceStore) IsTrusted(ctx context.Context, identifier, fingerprint string) (bool, error) {
	if identifier == "" || fingerprint == "" {
		return false, nil
	}
	key := s.deviceKeyPrefix(identifier) + fingerprint
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	record, err := decodeTrustedDevice(data)
	if err != nil {
		return false, err
	}
	if !s.now().Before(record.ExpiresAt) {
		_, _ = s.redis.Del(ctx, key).Result()
		return false, nil
	}
	return record.Fingerprint == fingerprint && record.Identifier == identifier, nil
}

// RevokeAll removes every trusted device of identifier and returns how many
// fingerprints were indexed.
func (s *TrustedDeviceStore) RevokeAll(ctx context.Context, identifier string) (int, error) {
	n, err := revokeDevicesLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(identifier)},
		s.deviceKeyPrefix(identifier),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTrustedDeviceBackend, err)
	}
	return n, nil
}

func encodeTrustedDevice(record *TrustedDevice) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(trustedDeviceRecordVersion1)
	buf.Write(record.TokenHash[:])
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.Unix()); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Identifier); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Fingerprint); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTrustedDevice(data []byte) (*TrustedDevice, error) {
	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != trustedDeviceRecordVersion1 {
		return nil, errors.New("invalid trusted device version")
	}

	record := &TrustedDevice{}
	if _, err := io.ReadFull(reader, record.TokenHash[:]); err != nil {
		return nil, err
	}
	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	record.ExpiresAt = time.Unix(expires, 0)
	if record.Identifier, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Fingerprint, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
