// Package query caches backend reads by key. A cached value is fresh for
// the stale time; a stale value is still served while a background refetch
// replaces it. Concurrent fetches of one key share a single backend call,
// failed fetches are retried with exponential backoff, and entries nobody
// has touched or observed for the GC time are evicted.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/retry"
)

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New(errors.ErrCodeInternalError, "query cache is closed")

type fetchFunc func(context.Context) (any, error)

type result struct {
	value any
	err   error
}

type entry struct {
	key         Key
	value       any
	hasValue    bool
	err         error
	updatedAt   time.Time
	errorAt     time.Time
	lastAccess  time.Time
	invalidated bool
	fetcher     fetchFunc
	subs        map[*Subscription]struct{}
}

func (e *entry) observers() int {
	return len(e.subs)
}

// State is a snapshot of one cache entry.
type State struct {
	Key       Key
	Value     any
	HasValue  bool
	Err       error
	UpdatedAt time.Time
	ErrorAt   time.Time
	Stale     bool
	Observers int
}

// Cache is a keyed query cache. Create it with New and release it with Close.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	staleTime     time.Duration
	gcTime        time.Duration
	gcInterval    time.Duration
	queryRetry    retry.BackoffConfig
	mutationRetry retry.BackoffConfig
	isRetryable   func(error) bool
	now           func() time.Time
	logger        *logrus.Logger
	metrics       *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New builds a Cache and starts its eviction loop.
func New(opts ...Option) *Cache {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	c := &Cache{
		entries:       make(map[string]*entry),
		staleTime:     constants.DefaultStaleTime,
		gcTime:        constants.DefaultGCTime,
		gcInterval:    constants.DefaultGCInterval,
		queryRetry:    retry.DefaultBackoffConfig(),
		mutationRetry: retry.MutationBackoffConfig(),
		isRetryable:   retry.IsRetryableError,
		now:           time.Now,
		logger:        logger,
		metrics:       metrics.GetRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.gcInterval > 0 {
		c.wg.Add(1)
		go c.gcLoop()
	}
	return c
}

// Close stops the eviction loop, every poller and cancels in-flight
// fetches, then waits for them to exit. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// entryLocked returns the entry for key, creating it when missing.
func (c *Cache) entryLocked(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: key, lastAccess: c.now(), subs: make(map[*Subscription]struct{})}
		c.entries[k] = e
		c.metrics.SetGauge(metrics.QueryEntries, float64(len(c.entries)), nil, "Cached query entries")
	}
	return e
}

func (c *Cache) isFreshLocked(e *entry, now time.Time) bool {
	return e.hasValue && !e.invalidated && now.Sub(e.updatedAt) < c.staleTime
}

// lookup serves key from the cache when possible. A stale value is returned
// together with a background refetch; a miss falls through to a fetch the
// caller waits on.
func (c *Cache) lookup(ctx context.Context, key Key, fetcher fetchFunc) (any, error) {
	labels := map[string]string{"resource": key.Resource}
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	e.lastAccess = now
	e.fetcher = fetcher
	if e.hasValue {
		value := e.value
		fresh := c.isFreshLocked(e, now)
		c.mu.Unlock()

		if fresh {
			c.metrics.IncrementCounter(metrics.QueryHits, labels, "Fresh cache hits")
			return value, nil
		}
		c.metrics.IncrementCounter(metrics.QueryStaleHits, labels, "Stale cache hits served while refetching")
		c.start(ctx, key, fetcher)
		return value, nil
	}
	c.mu.Unlock()

	c.metrics.IncrementCounter(metrics.QueryMisses, labels, "Cache misses")
	return c.await(ctx, key, fetcher)
}

// await starts or joins the fetch of key and waits for it or for ctx.
// A caller that gives up does not cancel the shared fetch.
func (c *Cache) await(ctx context.Context, key Key, fetcher fetchFunc) (any, error) {
	ch, ok := c.start(ctx, key, fetcher)
	if !ok {
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.value, res.err
	}
}

// start runs fetcher for key unless a fetch for key is already in flight,
// in which case the caller joins it.
func (c *Cache) start(ctx context.Context, key Key, fetcher fetchFunc) (<-chan result, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	out := make(chan result, 1)
	go func() {
		defer c.wg.Done()
		v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
			return c.run(ctx, key, fetcher)
		})
		out <- result{value: v, err: err}
	}()
	return out, true
}

// run performs one retried fetch and stores its outcome. The fetch keeps
// the values of parent but is only cancelled by Close.
func (c *Cache) run(parent context.Context, key Key, fetcher fetchFunc) (any, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()
	defer cancel()

	labels := map[string]string{"resource": key.Resource}
	c.metrics.IncrementCounter(metrics.QueryFetches, labels, "Backend fetches started by the cache")
	done := c.metrics.StartTimer(metrics.QueryFetchTime, labels, "Fetch duration including retries")

	backoff := retry.NewBackoff(c.queryRetry).WithNotify(func(attempt int, err error, delay time.Duration) {
		c.metrics.IncrementCounter(metrics.QueryRetries, labels, "Fetch retries")
		c.logger.WithFields(logrus.Fields{
			"key":      key.String(),
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).WithError(err).Debug("Retrying query")
	})

	var value any
	err := backoff.RetryWithPredicate(ctx, func() error {
		v, err := fetcher(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	}, c.isRetryable)
	elapsed := done()

	// Callers arriving after the result is published start a new fetch
	// instead of joining this one.
	c.group.Forget(key.String())
	c.store(key, value, err)

	if err != nil {
		c.metrics.IncrementCounter(metrics.QueryFetchErrors, labels, "Fetches that failed after retries")
		c.logger.WithFields(logrus.Fields{
			"key":         key.String(),
			"duration_ms": elapsed.Milliseconds(),
			"error_code":  errors.GetCode(err),
		}).WithError(err).Warn("Query failed")
		return nil, err
	}
	return value, nil
}

// store records a fetch outcome and pushes it to the entry's subscribers.
// A failure keeps the previous value.
func (c *Cache) store(key Key, value any, err error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if err != nil {
		e.err = err
		e.errorAt = now
	} else {
		e.value = value
		e.hasValue = true
		e.err = nil
		e.updatedAt = now
		e.invalidated = false
	}

	update := Update{Key: key, Value: e.value, Err: err, UpdatedAt: now}
	for sub := range e.subs {
		sub.deliver(update)
	}
}

// Get returns the state of key without fetching. It counts as an access.
func (c *Cache) Get(key Key) (State, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return State{Key: key}, false
	}
	e.lastAccess = now
	return State{
		Key:       e.key,
		Value:     e.value,
		HasValue:  e.hasValue,
		Err:       e.err,
		UpdatedAt: e.updatedAt,
		ErrorAt:   e.errorAt,
		Stale:     !c.isFreshLocked(e, now),
		Observers: e.observers(),
	}, true
}

// SetData writes value for key as if it had just been fetched.
func (c *Cache) SetData(key Key, value any) {
	c.store(key, value, nil)

	c.mu.Lock()
	if e, ok := c.entries[key.String()]; ok {
		e.lastAccess = c.now()
	}
	c.mu.Unlock()
}

// Invalidate marks every entry under prefix stale and refetches the ones
// that have subscribers. It returns how many entries were marked.
func (c *Cache) Invalidate(prefix string) int {
	type refetch struct {
		key     Key
		fetcher fetchFunc
	}

	c.mu.Lock()
	var pending []refetch
	n := 0
	for k, e := range c.entries {
		if !matchesPrefix(k, prefix) {
			continue
		}
		e.invalidated = true
		n++
		if e.observers() > 0 && e.fetcher != nil {
			pending = append(pending, refetch{key: e.key, fetcher: e.fetcher})
		}
	}
	c.mu.Unlock()

	for _, p := range pending {
		c.start(c.ctx, p.key, p.fetcher)
	}

	c.logger.WithFields(logrus.Fields{
		"prefix":      prefix,
		"invalidated": n,
		"refetching":  len(pending),
	}).Debug("Invalidated queries")
	return n
}

// Remove drops key from the cache.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key.String())
	c.metrics.SetGauge(metrics.QueryEntries, float64(len(c.entries)), nil, "Cached query entries")
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch returns the value for key, calling fn on a miss or after the value
// went stale. fn errors are retried per the cache's query policy.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.lookup(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return cast[T](key, v)
}

// Refetch fetches key now regardless of staleness and waits for the result.
func Refetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	fetcher := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	c.mu.Lock()
	if !c.closed {
		e := c.entryLocked(key)
		e.lastAccess = c.now()
		e.fetcher = fetcher
	}
	c.mu.Unlock()

	v, err := c.await(ctx, key, fetcher)
	if err != nil {
		return zero, err
	}
	return cast[T](key, v)
}

// Mutate runs a write with the mutation retry policy and, on success,
// invalidates every listed key prefix.
func Mutate[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error), invalidate ...string) (T, error) {
	var out T
	backoff := retry.NewBackoff(c.mutationRetry).WithNotify(func(attempt int, err error, delay time.Duration) {
		c.metrics.IncrementCounter(metrics.QueryRetries, map[string]string{"resource": "mutation"}, "Fetch retries")
	})
	err := backoff.RetryWithPredicate(ctx, func() error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, c.isRetryable)
	if err != nil {
		var zero T
		return zero, err
	}

	for _, prefix := range invalidate {
		c.Invalidate(prefix)
	}
	return out, nil
}

func cast[T any](key Key, v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New(errors.ErrCodeInternalError,
			fmt.Sprintf("cached value for %s has type %T", key.String(), v))
	}
	return typed, nil
}
