package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rememberMeRecordVersion1 = 1

var ErrRememberMeBackend = errors.New("remember-me backend unavailable")

// RememberMeRecord is the single long-lived login token a principal may hold.
// Only the SHA-256 of the token is stored.
type RememberMeRecord struct {
	ID        string
	TokenHash [32]byte
	Days      uint16
	IssuedAt  time.Time
}

// ExpiresAt is IssuedAt plus Days.
func (r *RememberMeRecord) ExpiresAt() time.Time {
	return r.IssuedAt.Add(time.Duration(r.Days) * 24 * time.Hour)
}

type RememberMeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRememberMeStore(redisClient redis.UniversalClient, prefix string) *RememberMeStore {
	if prefix == "" {
		prefix = "prm"
	}
	return &RememberMeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RememberMeStore) key(identifier string) string {
	return s.prefix + ":" + identifier
}

// Issue replaces any existing record for identifier and returns the new
// plaintext token.
func (s *RememberMeStore) Issue(ctx context.Context, identifier string, days int) (string, error) {
	if identifier == "" {
		return "", errors.New("identifier is required")
	}
	if days <= 0 || days > 65535 {
		return "", fmt.Errorf("invalid remember-me days %d", days)
	}
	token, hash, err := newSecretToken()
	if err != nil {
		return "", err
	}
	record := &RememberMeRecord{
		ID:        uuid.NewString(),
		TokenHash: hash,
		Days:      uint16(days),
		IssuedAt:  s.now(),
	}
	encoded, err := encodeRememberMe(record)
	if err != nil {
		return "", err
	}
	ttl := time.Duration(days) * 24 * time.Hour
	if err := s.redis.Set(ctx, s.key(identifier), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRememberMeBackend, err)
	}
	return token, nil
}

func (s *RememberMeStore) get(ctx context.Context, identifier string) (*RememberMeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRememberMeBackend, err)
	}
	record, err := decodeRememberMe(data)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(record.ExpiresAt()) {
		_, _ = s.redis.Del(ctx, s.key(identifier)).Result()
		return nil, nil
	}
	return record, nil
}

// Exists reports whether identifier holds an unexpired record.
func (s *RememberMeStore) Exists(ctx context.Context, identifier string) (bool, error) {
	record, err := s.get(ctx, identifier)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// Verify reports whether token matches the stored record.
func (s *RememberMeStore) Verify(ctx context.Context, identifier, token string) (bool, error) {
	if identifier == "" || token == "" {
		return false, nil
	}
	record, err := s.get(ctx, identifier)
	if err != nil || record == nil {
		return false, err
	}
	return tokenMatches(record.TokenHash, token), nil
}

// Revoke deletes the record. Revoking a missing record is not an error.
func (s *RememberMeStore) Revoke(ctx context.Context, identifier string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRememberMeBackend, err)
	}
	return n > 0, nil
}

func encodeRememberMe(record *RememberMeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(rememberMeRecordVersion1)
	buf.Write(record.TokenHash[:])
	if err := binary.Write(&buf, binary.BigEndian, record.Days); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt.Unix()); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.ID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRememberMe(data []byte) (*RememberMeRecord, error) {
	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != rememberMeRecordVersion1 {
		return nil, errors.New("invalid remember-me version")
	}
	record := &RememberMeRecord{}
	if _, err := io.ReadFull(reader, record.TokenHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.Days); err != nil {
		return nil, err
	}
	var issued int64
	if err := binary.Read(reader, binary.BigEndian, &issued); err != nil {
		return nil, err
	}
	record.IssuedAt = time.Unix(issued, 0)
	if record.ID, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
