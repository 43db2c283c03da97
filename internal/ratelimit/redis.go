package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// OperationTimeout bounds every store call, including script execution.
	OperationTimeout time.Duration

	// FailureThreshold is the number of consecutive connectivity failures
	// after which the store is marked unavailable.
	FailureThreshold int

	// MaxRetries bounds the fast reconnect attempts made after the store is
	// marked unavailable. RetryDelay doubles per attempt up to MaxRetryDelay.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	// HealthCheckInterval is how often the store is probed in the background.
	HealthCheckInterval time.Duration
}

func (o *RedisOptions) setDefaults() {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 500 * time.Millisecond
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	if o.MaxRetryDelay < o.RetryDelay {
		o.MaxRetryDelay = 5 * time.Second
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = 5 * time.Second
	}
}

// RedisStore is a Store backed by a single Redis server. The client connects
// lazily; the store starts out available and is demoted after FailureThreshold
// consecutive connectivity failures, then promoted again by the first
// successful reconnect or health probe.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
	logger *slog.Logger

	available    atomic.Bool
	failures     atomic.Int64
	reconnecting atomic.Bool

	mu          sync.Mutex
	lastError   string
	lastFailure time.Time
	closed      bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRedisStore creates a RedisStore and starts its health loop. No connection
// is made until the first operation.
func NewRedisStore(opts RedisOptions, logger *slog.Logger) *RedisStore {
	opts.setDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		// Retries are handled by the store's availability tracking and the
		// fallback limiter, not per command.
		MaxRetries: -1,
	})
	return newRedisStore(client, opts, logger)
}

func newRedisStore(client *redis.Client, opts RedisOptions, logger *slog.Logger) *RedisStore {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &RedisStore{
		client: client,
		opts:   opts,
		logger: logger.With("component", "redis_store", "addr", opts.Addr),
		done:   make(chan struct{}),
	}
	s.available.Store(true)

	s.wg.Add(1)
	go s.healthLoop()
	return s
}

// Client exposes the underlying client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Available() bool {
	return s.available.Load()
}

func (s *RedisStore) Eval(ctx context.Context, script *Script, keys []string, args ...interface{}) ([]int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	res, err := script.Run(opCtx, s.client, keys, args...)
	s.observe(ctx, err)
	if err != nil {
		return nil, &StoreError{Op: "eval " + script.Name, Err: err}
	}
	return res, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	n, err := s.client.Del(opCtx, keys...).Result()
	s.observe(ctx, err)
	if err != nil {
		return 0, &StoreError{Op: "del", Err: err}
	}
	return n, nil
}

func (s *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	pool := s.client.PoolStats()
	stats := StoreStats{
		TotalConns:          pool.TotalConns,
		IdleConns:           pool.IdleConns,
		StaleConns:          pool.StaleConns,
		Hits:                pool.Hits,
		Misses:              pool.Misses,
		Timeouts:            pool.Timeouts,
		ConsecutiveFailures: s.failures.Load(),
	}
	s.mu.Lock()
	stats.LastError = s.lastError
	stats.LastFailure = s.lastFailure
	s.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	n, err := s.client.DBSize(opCtx).Result()
	s.observe(ctx, err)
	if err != nil {
		return stats, &StoreError{Op: "dbsize", Err: err}
	}
	stats.Keys = n
	return stats, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
	defer cancel()

	err := s.client.Ping(opCtx).Err()
	s.observe(ctx, err)
	if err != nil {
		return &StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close stops background goroutines and closes the client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.available.Store(false)
	return s.client.Close()
}

// observe updates availability from the outcome of an operation made on
// behalf of parent. Errors replied by the server mean it is reachable and do
// not count as failures. When the caller gave up the outcome says nothing
// about the server, so the failure streak is left untouched.
func (s *RedisStore) observe(parent context.Context, err error) {
	if err != nil && callerGaveUp(parent, err) {
		return
	}
	if err == nil || isServerError(err) {
		s.failures.Store(0)
		if s.available.CompareAndSwap(false, true) {
			s.logger.Info("Rate limit store available")
		}
		return
	}

	n := s.failures.Add(1)
	s.mu.Lock()
	s.lastError = err.Error()
	s.lastFailure = time.Now()
	s.mu.Unlock()

	s.logger.Warn("Rate limit store operation failed", "error", err, "consecutive_failures", n)

	if n >= int64(s.opts.FailureThreshold) && s.available.CompareAndSwap(true, false) {
		s.logger.Error("Rate limit store marked unavailable", "consecutive_failures", n)
		s.startReconnect()
	}
}

// callerGaveUp reports whether err stems from the caller's context rather
// than from the store. Only OperationTimeout expiring counts against the store.
func callerGaveUp(parent context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || parent.Err() != nil
}

func isServerError(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}

func (s *RedisStore) startReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.reconnect()
}

// reconnect pings with exponential backoff up to MaxRetries times. If every
// attempt fails, recovery is left to the health loop.
func (s *RedisStore) reconnect() {
	defer s.wg.Done()
	defer s.reconnecting.Store(false)

	delay := s.opts.RetryDelay
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.probe() {
			s.logger.Info("Rate limit store reconnected", "attempt", attempt)
			return
		}
		s.logger.Warn("Rate limit store reconnect failed", "attempt", attempt, "max_retries", s.opts.MaxRetries)

		delay *= 2
		if delay > s.opts.MaxRetryDelay {
			delay = s.opts.MaxRetryDelay
		}
	}
	s.logger.Error("Rate limit store reconnect attempts exhausted",
		"max_retries", s.opts.MaxRetries,
		"health_check_interval", s.opts.HealthCheckInterval,
	)
}

func (s *RedisStore) healthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.reconnecting.Load() {
				s.probe()
			}
		}
	}
}

// probe pings the server and reports whether it answered.
func (s *RedisStore) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.OperationTimeout)
	defer cancel()
	err := s.client.Ping(ctx).Err()
	s.observe(context.Background(), err)
	return err == nil
}
