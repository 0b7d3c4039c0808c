package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingAuthRecordVersion1 = 1

var (
	ErrPendingAuthNotFound = errors.New("pending auth not found")
	ErrPendingAuthExpired  = errors.New("pending auth expired")
	ErrPendingAuthExceeded = errors.New("pending auth attempts exceeded")
	ErrPendingAuthBackend  = errors.New("pending auth backend unavailable")
)

// PendingAuth is a login whose credentials were verified but whose second
// factor is still outstanding.
type PendingAuth struct {
	ID          string
	Identifier  string
	RememberMe  bool
	Fingerprint string
	CreatedAt   time.Time
	Attempts    uint16
}

// PendingAuthStore is the Redis-backed pending-auth cache. Redis TTL bounds
// memory; reads additionally compare CreatedAt against the TTL so an entry is
// never served past its deadline. Consume is a single DEL, which makes it the
// linearization point: at most one caller observes a successful consume.
type PendingAuthStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewPendingAuthStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *PendingAuthStore {
	if prefix == "" {
		prefix = "ppa"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PendingAuthStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *PendingAuthStore) key(pendingID string) string {
	return s.prefix + ":" + pendingID
}

// TTL returns the lifetime of a parked entry.
func (s *PendingAuthStore) TTL() time.Duration {
	return s.ttl
}

// Park stores a new entry under a fresh random id and returns the id.
func (s *PendingAuthStore) Park(ctx context.Context, identifier string, rememberMe bool, fingerprint string) (string, error) {
	id, err := newOpaqueID()
	if err != nil {
		return "", err
	}
	record := &PendingAuth{
		Identifier:  identifier,
		RememberMe:  rememberMe,
		Fingerprint: fingerprint,
		CreatedAt:   s.now(),
	}
	encoded, err := encodePendingAuth(record)
	if err != nil {
		return "", err
	}
	ok, err := s.redis.SetNX(ctx, s.key(id), encoded, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPendingAuthBackend, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: pending id collision", ErrPendingAuthBackend)
	}
	return id, nil
}

// Resolve returns the parked entry. An entry past its TTL is deleted and
// reported as ErrPendingAuthExpired even if Redis has not evicted it yet.
func (s *PendingAuthStore) Resolve(ctx context.Context, pendingID string) (*PendingAuth, error) {
	if pendingID == "" {
		return nil, ErrPendingAuthNotFound
	}
	data, err := s.redis.Get(ctx, s.key(pendingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingAuthNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingAuthBackend, err)
	}

	record, err := decodePendingAuth(data)
	if err != nil {
		return nil, err
	}
	record.ID = pendingID
	if s.expired(record) {
		_, _ = s.redis.Del(ctx, s.key(pendingID)).Result()
		return nil, ErrPendingAuthExpired
	}
	return record, nil
}

// Consume deletes the entry and reports whether this call removed it.
func (s *PendingAuthStore) Consume(ctx context.Context, pendingID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(pendingID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingAuthBackend, err)
	}
	return n > 0, nil
}

// RecordFailure counts a wrong code against the entry without extending its
// lifetime. Reaching maxAttempts deletes the entry and returns exceeded=true.
func (s *PendingAuthStore) RecordFailure(ctx context.Context, pendingID string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(pendingID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingAuth(data)
			if err != nil {
				return err
			}

			if !s.now().Before(record.CreatedAt.Add(s.ttl)) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrPendingAuthExpired
			}

			record.Attempts++
			if maxAttempts > 0 && int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodePendingAuth(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrPendingAuthNotFound
			}
			if errors.Is(err, ErrPendingAuthExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrPendingAuthBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrPendingAuthNotFound
}

func (s *PendingAuthStore) expired(record *PendingAuth) bool {
	return !s.now().Before(record.CreatedAt.Add(s.ttl))
}

func encodePendingAuth(record *PendingAuth) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingAuthRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	var remember byte
	if record.RememberMe {
		remember = 1
	}
	buf.WriteByte(remember)

	if err := writeString(&buf, record.Identifier); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Fingerprint); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePendingAuth(data []byte) (*PendingAuth, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingAuthRecordVersion1 {
		return nil, errors.New("invalid pending auth version")
	}

	record := &PendingAuth{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	var createdMillis int64
	if err := binary.Read(reader, binary.BigEndian, &createdMillis); err != nil {
		return nil, err
	}
	record.CreatedAt = time.UnixMilli(createdMillis)

	remember, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberMe = remember == 1

	if record.Identifier, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Fingerprint, err = readString(reader); err != nil {
		return nil, err
	}

	return record, nil
}
