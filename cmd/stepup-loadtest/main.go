package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goStepUp/configfile"
	"github.com/MrEthical07/goStepUp/replay"
	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		keys        = flag.Int("keys", 10000, "number of distinct restriction keys")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (restrict + replay)")
		dupRatio    = flag.Float64("dup", 0.1, "fraction of replay operations reusing a seen value")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, the config file, REDIS_ADDR env or miniredis is used")
		configPath  = flag.String("config", "", "optional goStepUp config file for window tables and prefixes")
	)
	flag.Parse()

	if *keys <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "keys, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	file, err := configfile.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	cfg, err := file.Config()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		if opts := file.RedisOptions(); opts != nil {
			addr = opts.Addr
		}
	}
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	total, err := restrictor.PoliciesFromMillis(cfg.Restrictor.Total)
	if err != nil {
		fmt.Fprintf(os.Stderr, "total table: %v\n", err)
		os.Exit(2)
	}
	failures, err := restrictor.PoliciesFromMillis(cfg.Restrictor.Failures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failures table: %v\n", err)
		os.Exit(2)
	}
	rcfg := restrictor.Config{Total: total, Failures: failures}

	var retention time.Duration
	for _, p := range append(total, failures...) {
		retention = max(retention, p.Window)
	}
	r, err := restrictor.New(restrictor.NewRedisStore(client, cfg.Restrictor.RedisPrefix, retention), rcfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "restrictor: %v\n", err)
		os.Exit(1)
	}
	guard, err := replay.NewGuard(
		replay.NewRedisCache(client, cfg.Replay.RedisPrefix, cfg.Replay.Window),
		cfg.Replay.Window, cfg.Replay.MaxFutureSkew, nil,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay guard: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	restrictStats := runRestrictPhase(ctx, r, *keys, *ops, *concurrency)
	replayStats := runReplayPhase(ctx, guard, *ops, *concurrency, *dupRatio)

	fmt.Println("---- results ----")
	printStats("restrict", restrictStats)
	printStats("replay", replayStats)
}

// runRestrictPhase records failures on random keys. Refusals are the
// expected steady state once keys fill up and are counted separately.
func runRestrictPhase(ctx context.Context, r *restrictor.Restrictor, keys, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		refused   int64
		failed    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		worker := w
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				key := "loadtest:" + strconv.Itoa(rnd.Intn(keys))
				t0 := time.Now()
				err := r.Record(ctx, key, restrictor.EventFailure)
				d := time.Since(t0)
				switch {
				case err == nil:
				case errors.Is(err, restrictor.ErrLimitReached):
					atomic.AddInt64(&refused, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	stats := computeStats(time.Since(start), latencies, failed)
	stats.refused = refused
	return stats
}

func runReplayPhase(ctx context.Context, guard *replay.Guard, ops, concurrency int, dupRatio float64) phaseStats {
	var (
		cursor    int64
		refused   int64
		failed    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		worker := w
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				n := i
				if i > 0 && rnd.Float64() < dupRatio {
					n = rnd.Intn(i)
				}
				value := "jti-" + strconv.Itoa(n)
				t0 := time.Now()
				err := guard.Accept(ctx, value, time.Now())
				d := time.Since(t0)
				switch {
				case err == nil:
				case errors.Is(err, replay.ErrReplayed):
					atomic.AddInt64(&refused, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	stats := computeStats(time.Since(start), latencies, failed)
	stats.refused = refused
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	refused  int64
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

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d refused=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.refused,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
