package bus

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry runs service cycles for a set of controllers on one worker
// goroutine. Interrupt is the only entry point meant for other goroutines
// (typically an IRQ bottom half): it enqueues the device under the queue
// lock and signals the worker, touching no ring or codec state itself. The
// worker processes one device's full cycle before moving to the next.
type Registry struct {
	log *slog.Logger

	mu     sync.Mutex
	queue  []*Controller
	queued map[*Controller]bool

	wake chan struct{}
	g    *errgroup.Group
	stop context.CancelFunc
}

// NewRegistry starts the worker goroutine.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	r := &Registry{
		log:    logger,
		queued: make(map[*Controller]bool),
		wake:   make(chan struct{}, 1),
		g:      g,
		stop:   cancel,
	}

	g.Go(func() error {
		return r.work(ctx)
	})

	return r
}

// Interrupt marks the controller as pending and wakes the worker. A device
// already pending is not queued twice.
func (r *Registry) Interrupt(c *Controller) {
	r.mu.Lock()
	if !r.queued[c] {
		r.queued[c] = true
		r.queue = append(r.queue, c)
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker and waits for it to finish any cycle in progress.
// Pending devices are abandoned.
func (r *Registry) Close() error {
	r.stop()
	return r.g.Wait()
}

func (r *Registry) work(ctx context.Context) error {
	for {
		c := r.pop()
		if c == nil {
			select {
			case <-r.wake:
				continue

			case <-ctx.Done():
				return nil
			}
		}

		if err := c.Service(); err != nil {
			r.log.Error("service cycle failed", "err", err)
		}
	}
}

func (r *Registry) pop() *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return nil
	}

	c := r.queue[0]
	r.queue = r.queue[1:]
	delete(r.queued, c)

	return c
}
