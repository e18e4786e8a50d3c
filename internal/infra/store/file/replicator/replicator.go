// Package replicator copies freshly saved artifacts to a mirror in the
// background so a download never waits on the mirror.
package replicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
)

type Source interface {
	Get(ctx context.Context, name string) (io.ReadCloser, domain.Artifact, error)
}

type Mirror interface {
	Put(ctx context.Context, r io.Reader, a domain.Artifact) (domain.Artifact, error)
}

// ResultFunc is told how each artifact ended up. err is nil on success.
type ResultFunc func(a domain.Artifact, attempts int, err error)

type Option func(*Replicator)

func WithRetryDelay(d time.Duration) Option {
	return func(r *Replicator) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

func WithResultFunc(fn ResultFunc) Option {
	return func(r *Replicator) {
		if fn != nil {
			r.onResult = fn
		}
	}
}

// Replicator runs a fixed pool of workers over a bounded queue. A failed copy
// is retried by the same worker, doubling the pause each time.
type Replicator struct {
	src    Source
	mirror Mirror

	queue      chan domain.Artifact
	workers    int
	maxRetries int
	retryDelay time.Duration
	onResult   ResultFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func New(src Source, mirror Mirror, queueSize, workers, maxRetries int, opts ...Option) *Replicator {
	if queueSize <= 0 {
		queueSize = 16
	}
	if workers <= 0 {
		workers = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	r := &Replicator{
		src:        src,
		mirror:     mirror,
		queue:      make(chan domain.Artifact, queueSize),
		workers:    workers,
		maxRetries: maxRetries,
		retryDelay: 200 * time.Millisecond,
		onResult:   func(domain.Artifact, int, error) {},
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the workers. They outlive ctx's cancellation; only Stop
// ends them.
func (r *Replicator) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Unlock()

	r.wg.Add(r.workers)
	for range r.workers {
		go r.work()
	}
}

// Stop refuses new artifacts and waits for the queued ones. When ctx ends
// first, copies in flight are canceled.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	defer r.cancel()
	select {
	case <-done:
		slog.Debug("replicator stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("replicator stop: %w", ctx.Err())
	}
}

// Enqueue never blocks. It reports false when the queue is full or stopped.
func (r *Replicator) Enqueue(a domain.Artifact) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	select {
	case r.queue <- a:
		return true
	default:
		return false
	}
}

func (r *Replicator) work() {
	defer r.wg.Done()
	for a := range r.queue {
		attempts, err := r.replicate(r.ctx, a)
		r.onResult(a, attempts, err)
	}
}

func (r *Replicator) replicate(ctx context.Context, a domain.Artifact) (int, error) {
	l := slog.With(slog.String("artifact", a.Name))

	delay := r.retryDelay
	for attempt := 1; ; attempt++ {
		mirrored, err := r.copyOnce(ctx, a)
		if err == nil {
			l.Debug("artifact mirrored",
				slog.String("path", mirrored.Path),
				slog.Int64("size", mirrored.Size),
				slog.Int("attempts", attempt),
			)
			return attempt, nil
		}

		if attempt > r.maxRetries {
			l.Error("artifact not mirrored, giving up",
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			return attempt, err
		}

		l.Warn("artifact mirror failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		case <-t.C:
			delay *= 2
		}
	}
}

func (r *Replicator) copyOnce(ctx context.Context, a domain.Artifact) (domain.Artifact, error) {
	rc, stored, err := r.src.Get(ctx, a.Name)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close()

	if a.Size <= 0 {
		a.Size = stored.Size
	}
	if a.MIMEType == "" {
		a.MIMEType = stored.MIMEType
	}

	return r.mirror.Put(ctx, rc, a)
}
