package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ps")
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(id string, timeout time.Duration) *Session {
	now := time.Now().Unix()
	return &Session{
		SessionID:      id,
		Identifier:     "a@x.com",
		Role:           "CLIENT",
		TimeoutSeconds: int64(timeout / time.Second),
		CreatedAt:      now,
		LastSeenAt:     now,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1", 30*time.Minute)
	sess.Admin = true
	sess.RememberMe = true
	replaced, err := store.Create(ctx, sess)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if replaced != "" {
		t.Fatalf("expected nothing replaced, got %q", replaced)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Identifier != "a@x.com" || got.Role != "CLIENT" || !got.Admin || !got.RememberMe {
		t.Fatalf("unexpected session: %+v", got)
	}
	if ttl := mr.TTL("ps:s:sid-1"); ttl != 30*time.Minute {
		t.Fatalf("expected 30m TTL, got %s", ttl)
	}
}

func TestCreateReplacesPreviousSession(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Create(ctx, testSession("sid-1", time.Hour)); err != nil {
		t.Fatalf("create first: %v", err)
	}
	replaced, err := store.Create(ctx, testSession("sid-2", time.Hour))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if replaced != "sid-1" {
		t.Fatalf("expected sid-1 replaced, got %q", replaced)
	}
	if mr.Exists("ps:s:sid-1") {
		t.Fatal("expected previous session record deleted")
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected replaced session not found, got %v", err)
	}
	current, err := store.CurrentSessionID(ctx, "a@x.com")
	if err != nil || current != "sid-2" {
		t.Fatalf("expected sid-2 current, got %q %v", current, err)
	}
}

func TestConcurrentCreateLeavesOneLiveSession(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := store.Create(ctx, testSession(id, time.Hour)); err != nil {
				t.Errorf("create %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	live := 0
	for _, id := range ids {
		if _, err := store.Get(ctx, id); err == nil {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live session, got %d", live)
	}
}

func TestTouchSlidesExpiry(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1", 30*time.Minute)
	if _, err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(20 * time.Minute)
	if err := store.Touch(ctx, sess, 30*time.Minute); err != nil {
		t.Fatalf("touch: %v", err)
	}
	mr.FastForward(20 * time.Minute)

	if !mr.Exists("ps:s:sid-1") {
		t.Fatal("expected touched session to survive past the original deadline")
	}
	if ttl := mr.TTL("ps:u:a@x.com"); ttl <= 0 {
		t.Fatal("expected owner index to slide with the session")
	}

	mr.FastForward(31 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session evicted, got %v", err)
	}
}

func TestTouchDoesNotResurrectReplacedSession(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	first := testSession("sid-1", time.Hour)
	if _, err := store.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, testSession("sid-2", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Touch(ctx, first, time.Hour); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected replaced session touch to fail, got %v", err)
	}
	if mr.Exists("ps:s:sid-1") {
		t.Fatal("touch must not recreate the replaced record")
	}
}

func TestGetLazilyDeletesIdleRecord(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1", time.Minute)
	if _, err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session rejected, got %v", err)
	}
	if mr.Exists("ps:s:sid-1") || mr.Exists("ps:u:a@x.com") {
		t.Fatal("expected idle session and owner index deleted on read")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Create(ctx, testSession("sid-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "a@x.com", "sid-1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if mr.Exists("ps:s:sid-1") || mr.Exists("ps:u:a@x.com") {
		t.Fatal("expected record and index removed")
	}
}

func TestDeleteStaleIDKeepsCurrentOwner(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Create(ctx, testSession("sid-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, testSession("sid-2", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, "a@x.com", "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-2"); err != nil {
		t.Fatalf("expected current session untouched: %v", err)
	}
}

func TestDeleteForIdentifier(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Create(ctx, testSession("sid-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	sid, err := store.DeleteForIdentifier(ctx, "a@x.com")
	if err != nil || sid != "sid-1" {
		t.Fatalf("expected sid-1 removed, got %q %v", sid, err)
	}
	sid, err = store.DeleteForIdentifier(ctx, "a@x.com")
	if err != nil || sid != "" {
		t.Fatalf("expected nothing left, got %q %v", sid, err)
	}
}

func TestRedisDownIsWrapped(t *testing.T) {
	store, mr, rdb, _ := newSessionStoreTest(t)
	defer rdb.Close()
	mr.Close()

	_, err := store.Get(context.Background(), "sid-1")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
