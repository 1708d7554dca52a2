package query

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/metrics"
)

const updateBuffer = 8

// Update is pushed to subscribers whenever a fetch for their key finishes.
// Value holds the latest successful value even when Err is set.
type Update struct {
	Key       Key
	Value     any
	Err       error
	UpdatedAt time.Time
}

// Subscription observes one key. While it is active the key is never
// evicted and invalidating it triggers an immediate refetch.
type Subscription struct {
	cache   *Cache
	key     Key
	updates chan Update
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Updates returns the channel of fetch outcomes. It is closed by Stop.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Key returns the observed key.
func (s *Subscription) Key() Key {
	return s.key
}

// Stop unregisters the subscription and closes Updates. It is safe to call
// more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		close(s.done)

		c := s.cache
		c.mu.Lock()
		if e, ok := c.entries[s.key.String()]; ok {
			delete(e.subs, s)
			e.lastAccess = c.now()
		}
		observers := c.observersLocked()
		c.mu.Unlock()
		c.metrics.SetGauge(metrics.QueryObservers, float64(observers), nil, "Active query subscriptions")

		s.mu.Lock()
		s.closed = true
		close(s.updates)
		s.mu.Unlock()
	})
}

// deliver queues u without blocking. When the buffer is full the oldest
// pending update is dropped.
func (s *Subscription) deliver(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.updates <- u:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func (c *Cache) observersLocked() int {
	n := 0
	for _, e := range c.entries {
		n += e.observers()
	}
	return n
}

// Poll subscribes to key and refetches it every interval until the
// subscription is stopped or the cache is closed. A cached value is
// delivered immediately; a missing or stale one is fetched right away.
func Poll[T any](c *Cache, key Key, interval time.Duration, fn func(context.Context) (T, error)) (*Subscription, error) {
	fetcher := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
	return c.subscribe(key, interval, fetcher)
}

// Watch subscribes to key without polling. Updates arrive when something
// else fetches, refetches, invalidates or sets the key.
func Watch[T any](c *Cache, key Key, fn func(context.Context) (T, error)) (*Subscription, error) {
	fetcher := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
	return c.subscribe(key, 0, fetcher)
}

func (c *Cache) subscribe(key Key, interval time.Duration, fetcher fetchFunc) (*Subscription, error) {
	sub := &Subscription{
		cache:   c,
		key:     key,
		updates: make(chan Update, updateBuffer),
		done:    make(chan struct{}),
	}
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	e.subs[sub] = struct{}{}
	e.fetcher = fetcher
	e.lastAccess = now
	if e.hasValue || e.err != nil {
		sub.deliver(Update{Key: key, Value: e.value, Err: e.err, UpdatedAt: e.updatedAt})
	}
	needsFetch := !c.isFreshLocked(e, now)
	observers := c.observersLocked()
	if interval > 0 {
		c.wg.Add(1)
	}
	c.mu.Unlock()

	c.metrics.SetGauge(metrics.QueryObservers, float64(observers), nil, "Active query subscriptions")
	if needsFetch {
		c.start(c.ctx, key, fetcher)
	}
	if interval > 0 {
		go c.pollLoop(sub, interval, fetcher)
	}

	c.logger.WithFields(logrus.Fields{
		"key":         key.String(),
		"interval_ms": interval.Milliseconds(),
	}).Debug("Query subscription started")
	return sub, nil
}

func (c *Cache) pollLoop(sub *Subscription, interval time.Duration, fetcher fetchFunc) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			sub.Stop()
			return
		case <-sub.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if e, ok := c.entries[sub.key.String()]; ok {
				e.lastAccess = c.now()
			}
			c.mu.Unlock()
			c.start(c.ctx, sub.key, fetcher)
		}
	}
}

// Value extracts a typed value from an update.
func Value[T any](u Update) (T, bool) {
	v, ok := u.Value.(T)
	return v, ok
}

func (c *Cache) gcLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectGarbage()
		}
	}
}

// CollectGarbage evicts entries that have no subscribers and were last
// accessed more than the GC time ago. It returns the number evicted.
func (c *Cache) CollectGarbage() int {
	now := c.now()

	c.mu.Lock()
	evicted := 0
	for k, e := range c.entries {
		if e.observers() > 0 || now.Sub(e.lastAccess) < c.gcTime {
			continue
		}
		delete(c.entries, k)
		evicted++
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if evicted > 0 {
		c.metrics.AddToCounter(metrics.QueryEvictions, float64(evicted), nil, "Evicted cache entries")
		c.logger.WithFields(logrus.Fields{
			"evicted":   evicted,
			"remaining": remaining,
		}).Debug("Collected unused queries")
	}
	c.metrics.SetGauge(metrics.QueryEntries, float64(remaining), nil, "Cached query entries")
	return evicted
}
