package ha

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"tradegate.io/server/internal/metrics"
	"tradegate.io/server/models"
)

// hookQueue runs transition hooks one at a time, in transition order.
//
// Only the latest transition matters: enqueueing cancels the hook in flight
// and replaces any hook that has not started yet. A single worker goroutine
// exists while there is work, so a slow pause can never complete after the
// resume of a later transition.
type hookQueue struct {
	hooks  TransitionHooks
	logger *zap.Logger

	mu       sync.Mutex
	gen      uint64
	pending  *hookJob
	inflight context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

type hookJob struct {
	gen  uint64
	mode models.Mode
}

func newHookQueue(hooks TransitionHooks, logger *zap.Logger) *hookQueue {
	return &hookQueue{hooks: hooks, logger: logger}
}

// enqueue schedules the hook for mode and supersedes everything before it.
func (q *hookQueue) enqueue(mode models.Mode) {
	if q.hooks == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.gen++
	if q.pending != nil {
		metrics.HAHookCalls.WithLabelValues(hookName(q.pending.mode), "superseded").Inc()
	}
	q.pending = &hookJob{gen: q.gen, mode: mode}
	if q.inflight != nil {
		q.inflight()
	}
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.run()
	}
}

// wait blocks until the queue is drained.
func (q *hookQueue) wait() {
	q.wg.Wait()
}

func (q *hookQueue) run() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		job := q.pending
		q.pending = nil
		if job == nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		q.inflight = cancel
		q.mu.Unlock()

		q.fire(ctx, job)

		q.mu.Lock()
		q.inflight = nil
		q.mu.Unlock()
		cancel()
	}
}

func (q *hookQueue) fire(ctx context.Context, job *hookJob) {
	name := hookName(job.mode)
	fire := q.hooks.OnBecamePassive
	if job.mode == models.ModeActive {
		fire = q.hooks.OnBecameActive
	}

	err := fire(ctx)
	switch {
	case err == nil:
		metrics.HAHookCalls.WithLabelValues(name, "success").Inc()
	case errors.Is(err, context.Canceled):
		metrics.HAHookCalls.WithLabelValues(name, "superseded").Inc()
		q.logger.Info("transition hook superseded", zap.String("hook", name), zap.Uint64("generation", job.gen))
	default:
		metrics.HAHookCalls.WithLabelValues(name, "failure").Inc()
		q.logger.Error("transition hook failed", zap.String("hook", name), zap.Error(err))
	}
}

func hookName(mode models.Mode) string {
	if mode == models.ModeActive {
		return "became_active"
	}
	return "became_passive"
}
