package portalauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type mockPrincipalStore struct {
	mu         sync.Mutex
	principals map[string]Principal
	findErr    error

	hashUpdates int
}

func (m *mockPrincipalStore) FindByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.principals[identifier]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	out := p
	return &out, nil
}

func (m *mockPrincipalStore) UpdatePasswordHash(_ context.Context, identifier, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[identifier]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordHash = passwordHash
	m.principals[identifier] = p
	m.hashUpdates++
	return nil
}

func (m *mockPrincipalStore) SetTwoFactor(_ context.Context, identifier, secret string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[identifier]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.TwoFactorSecret = secret
	p.TwoFactorEnabled = enabled
	m.principals[identifier] = p
	return nil
}

func (m *mockPrincipalStore) SetActive(_ context.Context, identifier string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[identifier]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Active = active
	m.principals[identifier] = p
	return nil
}

func (m *mockPrincipalStore) get(identifier string) Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principals[identifier]
}

func (m *mockPrincipalStore) remove(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.principals, identifier)
}

func (m *mockPrincipalStore) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findErr = err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = append([]byte(nil), testSigningKey...)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *mockPrincipalStore
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := &mockPrincipalStore{principals: map[string]Principal{}}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		_ = rdb.Close()
		mr.Close()
		t.Fatalf("build failed: %v", err)
	}

	env := &testEnv{engine: engine, store: store, mr: mr, rdb: rdb}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	env.addPrincipal(t, Principal{Identifier: "alice@example.com", Role: "member", Active: true, FirstName: "Alice"})
	return env
}

func (env *testEnv) addPrincipal(t *testing.T, p Principal) {
	t.Helper()
	if p.PasswordHash == "" {
		hash, err := env.engine.hasher.Hash(testPassword)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
		p.PasswordHash = hash
	}
	env.store.mu.Lock()
	env.store.principals[p.Identifier] = p
	env.store.mu.Unlock()
}

// enableTwoFactor gives identifier a fresh secret and returns it.
func (env *testEnv) enableTwoFactor(t *testing.T, identifier string) string {
	t.Helper()
	setup, err := env.engine.totp.GenerateSetup(identifier, "test")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := env.store.SetTwoFactor(context.Background(), identifier, setup.Secret, true); err != nil {
		t.Fatalf("set two-factor failed: %v", err)
	}
	return setup.Secret
}

func (env *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.totp.CodeAt(secret, time.Now())
	if err != nil {
		t.Fatalf("code generation failed: %v", err)
	}
	return code
}

func (env *testEnv) login(t *testing.T, ctx context.Context, rememberMe bool) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(ctx, LoginRequest{
		Identifier: "alice@example.com",
		Secret:     testPassword,
		RememberMe: rememberMe,
	}, env.engine.SessionFinalizer())
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return res
}

func deviceContext() context.Context {
	ctx := WithClientIP(context.Background(), "203.0.113.7")
	return WithUserAgent(ctx, "Mozilla/5.0 (X11; Linux x86_64)")
}

func TestBuildRequiresDependencies(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithPrincipalStore(&mockPrincipalStore{}).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without principal store")
	}
	if _, err := New().WithRedis(rdb).WithPrincipalStore(&mockPrincipalStore{}).Build(); err == nil {
		t.Fatal("expected error without signing key")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithPrincipalStore(&mockPrincipalStore{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestEnginePing(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.engine.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	env.mr.Close()
	if err := env.engine.Ping(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestConfigAccessorReturnsCopy(t *testing.T) {
	env := newTestEnv(t, nil)
	cfg := env.engine.Config()
	cfg.Token.PrivateKey[0] = 'X'
	cfg.Gatekeeper.PublicPaths[0] = "/changed"

	again := env.engine.Config()
	if again.Token.PrivateKey[0] == 'X' {
		t.Fatal("private key mutated through Config()")
	}
	if again.Gatekeeper.PublicPaths[0] == "/changed" {
		t.Fatal("public paths mutated through Config()")
	}
}
