// Package dataloader coalesces individual key lookups into batched fetches.
//
// A Loader is scoped to one request. Keys requested through Load accumulate in a
// pending batch that is dispatched when no new key has arrived for Wait, when it
// reaches MaxBatch keys, or when Flush is called. Each dispatch calls the batch
// function exactly once with the distinct keys in first-seen order, and every
// key is fetched at most once for the lifetime of the Loader.
package dataloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socialgraph/internal/models"
	"socialgraph/internal/observability"
)

// Defaults applied when Options leave a field unset.
const (
	DefaultWait     = 2 * time.Millisecond
	DefaultMaxBatch = 100
)

// BatchFunc fetches values for keys. It must return exactly len(keys) values,
// positionally aligned with keys.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// Options tune the batching window of a Loader.
type Options struct {
	Wait     time.Duration
	MaxBatch int
}

func (o Options) withDefaults() Options {
	if o.Wait <= 0 {
		o.Wait = DefaultWait
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = DefaultMaxBatch
	}
	return o
}

// Thunk is the pending result of one key.
type Thunk[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func newThunk[V any]() *Thunk[V] {
	return &Thunk[V]{done: make(chan struct{})}
}

func (t *Thunk[V]) resolve(v V, err error) {
	t.value = v
	t.err = err
	close(t.done)
}

// Get blocks until the value is available or ctx is done. Abandoning a wait does
// not cancel the batch for other callers.
func (t *Thunk[V]) Get(ctx context.Context) (V, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Resolved reports whether the value is already available.
func (t *Thunk[V]) Resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

type batch[K comparable, V any] struct {
	ctx    context.Context
	keys   []K
	thunks []*Thunk[V]
	timer  *time.Timer
}

// Loader deduplicates and batches lookups of K into calls of a BatchFunc.
type Loader[K comparable, V any] struct {
	name  string
	fetch BatchFunc[K, V]
	opts  Options

	mu      sync.Mutex
	cache   map[K]*Thunk[V]
	pending *batch[K, V]
}

// New creates a Loader. name labels metrics, spans and log lines.
func New[K comparable, V any](name string, fetch BatchFunc[K, V], opts Options) *Loader[K, V] {
	return &Loader[K, V]{
		name:  name,
		fetch: fetch,
		opts:  opts.withDefaults(),
		cache: make(map[K]*Thunk[V]),
	}
}

// Name returns the loader's label.
func (l *Loader[K, V]) Name() string {
	return l.name
}

// Load returns the thunk for key, queueing the key for the next batch if it has
// not been requested before.
func (l *Loader[K, V]) Load(ctx context.Context, key K) *Thunk[V] {
	l.mu.Lock()
	if t, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return t
	}

	t := newThunk[V]()
	l.cache[key] = t
	if l.pending == nil {
		// Dispatch outlives any single caller; keep values such as the correlation id.
		l.pending = &batch[K, V]{ctx: context.WithoutCancel(ctx)}
	}
	b := l.pending
	b.keys = append(b.keys, key)
	b.thunks = append(b.thunks, t)

	if len(b.keys) >= l.opts.MaxBatch {
		l.detach(b)
		l.mu.Unlock()
		go l.dispatch(b)
		return t
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(l.opts.Wait, func() { l.flushBatch(b) })
	} else {
		b.timer.Reset(l.opts.Wait)
	}
	l.mu.Unlock()
	return t
}

// LoadMany returns one thunk per key, in key order.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) []*Thunk[V] {
	out := make([]*Thunk[V], len(keys))
	for i, k := range keys {
		out[i] = l.Load(ctx, k)
	}
	return out
}

// Flush dispatches the pending batch, if any, and returns once its thunks are
// resolved.
func (l *Loader[K, V]) Flush() {
	l.mu.Lock()
	b := l.pending
	if b == nil {
		l.mu.Unlock()
		return
	}
	l.detach(b)
	l.mu.Unlock()
	l.dispatch(b)
}

// Clear drops key from the cache so the next Load fetches it again. A key whose
// fetch has not completed stays cached, so a batch never repeats a key.
func (l *Loader[K, V]) Clear(key K) {
	l.mu.Lock()
	if t, ok := l.cache[key]; ok && t.Resolved() {
		delete(l.cache, key)
	}
	l.mu.Unlock()
}

// Prime stores value for key unless the key is already cached.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; ok {
		return
	}
	t := newThunk[V]()
	t.resolve(value, nil)
	l.cache[key] = t
}

func (l *Loader[K, V]) flushBatch(b *batch[K, V]) {
	l.mu.Lock()
	if l.pending != b {
		l.mu.Unlock()
		return
	}
	l.detach(b)
	l.mu.Unlock()
	l.dispatch(b)
}

// detach must be called with l.mu held.
func (l *Loader[K, V]) detach(b *batch[K, V]) {
	if b.timer != nil {
		b.timer.Stop()
	}
	l.pending = nil
}

func (l *Loader[K, V]) dispatch(b *batch[K, V]) {
	ctx, span := observability.GetTraceLayer().TraceLoaderBatch(b.ctx, l.name, len(b.keys))
	fields := map[string]interface{}{"loader": l.name, "keys": len(b.keys)}
	observability.LogAsyncOperationStart(ctx, "loader.dispatch", fields)
	observability.LoaderBatchSize.WithLabelValues(l.name).Observe(float64(len(b.keys)))

	values, err := l.call(ctx, b.keys)
	if err == nil && len(values) != len(b.keys) {
		err = models.NewBatchFetchError(l.name,
			fmt.Errorf("batch function returned %d values for %d keys", len(values), len(b.keys)))
	}
	observability.EndSpan(span, err)

	if err != nil {
		observability.LoaderDispatchTotal.WithLabelValues(l.name, "error").Inc()
		observability.LogAsyncOperationError(ctx, "loader.dispatch", err, fields)
		var zero V
		for _, t := range b.thunks {
			t.resolve(zero, err)
		}
		return
	}

	observability.LoaderDispatchTotal.WithLabelValues(l.name, "success").Inc()
	for i, t := range b.thunks {
		t.resolve(values[i], nil)
	}
	observability.LogAsyncOperationEnd(ctx, "loader.dispatch", fields)
}

func (l *Loader[K, V]) call(ctx context.Context, keys []K) (values []V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewBatchFetchError(l.name, fmt.Errorf("panic: %v", r))
		}
	}()
	return l.fetch(ctx, keys)
}
