// Command portalauth-loadtest measures the two gatekeeper hot paths: session
// revalidation against Redis and stateless access-token validation.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ps", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)
	ids := make([]string, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range ids {
		sess, err := buildSession(i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "session id: %v\n", err)
			os.Exit(1)
		}
		if _, err := store.Create(ctx, sess); err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		ids[i] = sess.SessionID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	tokens, access, err := issueTokens(*sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token setup failed: %v\n", err)
		os.Exit(1)
	}

	revalidate := runPhase(*ops, *concurrency, len(ids), func(idx int) error {
		sess, err := store.Get(ctx, ids[idx])
		if err != nil {
			return err
		}
		return store.Touch(ctx, sess, sess.Timeout())
	})
	bearer := runPhase(*ops, *concurrency, len(access), func(idx int) error {
		_, err := tokens.ValidateAccess(access[idx])
		return err
	})

	fmt.Println("---- results ----")
	printStats("revalidate", revalidate)
	printStats("bearer", bearer)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildSession(i int) (*session.Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	return &session.Session{
		SessionID:      sid.String(),
		Identifier:     fmt.Sprintf("user-%d@loadtest.local", i),
		Role:           "member",
		TimeoutSeconds: int64((30 * time.Minute) / time.Second),
		CreatedAt:      now,
		LastSeenAt:     now,
	}, nil
}

// issueTokens signs one access token per seeded principal, capped at 10k.
func issueTokens(n int) (*jwt.Manager, []string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:           time.Hour,
		RememberMeAccessTTL: time.Hour,
		RefreshTTL:          24 * time.Hour,
		SigningMethod:       jwt.MethodEd25519,
		PrivateKey:          priv,
		PublicKey:           priv.Public().(ed25519.PublicKey),
		Issuer:              "portalauth-loadtest",
	})
	if err != nil {
		return nil, nil, err
	}
	if n > 10000 {
		n = 10000
	}
	out := make([]string, n)
	for i := range out {
		pair, err := m.Issue(jwt.Subject{Identifier: fmt.Sprintf("user-%d@loadtest.local", i), Role: "member"}, false)
		if err != nil {
			return nil, nil, err
		}
		out[i] = pair.AccessToken
	}
	return m, out, nil
}

// runPhase runs op ops times across concurrency workers, each call on a
// random index below n.
func runPhase(ops, concurrency, n int, op func(idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r.Intn(n))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-10s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
