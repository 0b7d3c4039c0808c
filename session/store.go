package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every backend failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned for unknown, idle-expired or replaced sessions.
var ErrSessionNotFound = errors.New("session not found")

// createSessionScript replaces whatever session the identifier currently owns
// with the new one in a single step, so two sessions are never live together.
const createSessionScript = `
local previous = redis.call("GET", KEYS[2])
if previous and previous ~= ARGV[1] then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
if previous and previous ~= ARGV[1] then
  return previous
end
return ""
`

var createSessionLua = redis.NewScript(createSessionScript)

// touchSessionScript rewrites a live session record and slides both expiries.
// It never recreates a record that was deleted or replaced in the meantime.
const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("GET", KEYS[2]) ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
return 1
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const deleteForIdentifierScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return ""
end
redis.call("DEL", ARGV[1] .. current)
redis.call("DEL", KEYS[1])
return current
`

var deleteForIdentifierLua = redis.NewScript(deleteForIdentifierScript)

// Store is a Redis-backed session store enforcing one live session per
// identifier and an inactivity expiry that slides on every touch.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ps"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) keyPrefix() string {
	return s.prefix + ":s:"
}

func (s *Store) key(sessionID string) string {
	return s.keyPrefix() + sessionID
}

func (s *Store) ownerKey(identifier string) string {
	return s.prefix + ":u:" + identifier
}

// Create persists sess as the only live session of its identifier and returns
// the id of the session it replaced, if any.
//
//	Performance: 1 Lua script (GET + DEL + 2 SET).
func (s *Store) Create(ctx context.Context, sess *Session) (string, error) {
	if sess.SessionID == "" || sess.Identifier == "" {
		return "", errors.New("session id and identifier required")
	}
	if sess.LastSeenAt == 0 {
		sess.LastSeenAt = sess.CreatedAt
	}
	data, err := Encode(sess)
	if err != nil {
		return "", err
	}

	previous, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.SessionID), s.ownerKey(sess.Identifier)},
		sess.SessionID,
		data,
		sess.Timeout().Milliseconds(),
		s.keyPrefix(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return previous, nil
}

// Get loads a session without extending it. Idle-expired records are deleted
// on read even if Redis has not evicted them yet.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if sess.IdleExpired(s.now()) {
		if err := s.Delete(ctx, sess.Identifier, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Touch records activity on sess with the given inactivity window. It returns
// ErrSessionNotFound when the session was deleted or replaced concurrently.
func (s *Store) Touch(ctx context.Context, sess *Session, timeout time.Duration) error {
	if timeout < time.Second {
		return errors.New("session timeout must be at least one second")
	}
	sess.LastSeenAt = s.now().Unix()
	sess.TimeoutSeconds = int64(timeout / time.Second)

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	n, err := touchSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.SessionID), s.ownerKey(sess.Identifier)},
		sess.SessionID,
		data,
		timeout.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session and clears the owner index if it still points at it.
// Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, identifier, sessionID string) error {
	err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.ownerKey(identifier)},
		sessionID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteForIdentifier removes whichever session identifier currently owns and
// returns its id ("" when there was none).
func (s *Store) DeleteForIdentifier(ctx context.Context, identifier string) (string, error) {
	sid, err := deleteForIdentifierLua.Run(
		ctx,
		s.redis,
		[]string{s.ownerKey(identifier)},
		s.keyPrefix(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// CurrentSessionID returns the live session id for identifier, or "".
func (s *Store) CurrentSessionID(ctx context.Context, identifier string) (string, error) {
	sid, err := s.redis.Get(ctx, s.ownerKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
