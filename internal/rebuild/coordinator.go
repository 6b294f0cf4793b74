// Package rebuild implements RebuildCoordinator, the state machine that
// owns at most one running IndexingPipeline at a time, tracks its
// progress, and enforces a wall-clock timeout.
package rebuild

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docmind/docmind-core/internal/indexing"
	"github.com/docmind/docmind-core/internal/models"
)

const (
	defaultTimeout   = 30 * time.Minute
	defaultGrace     = 5 * time.Second
	timeoutMessage   = "timeout exceeded"
	cancelledMessage = "cancelled"
)

// PipelineRunner is the subset of indexing.Pipeline the coordinator
// depends on, so a test can substitute a fake pipeline. Its signature uses
// indexing.ProgressEmitter, so rebuild still imports indexing.
type PipelineRunner interface {
	Run(ctx context.Context, root string, emit indexing.ProgressEmitter) (*models.CompletionStats, error)
}

// Subscriber receives forwarded, elapsed-time-decorated progress updates.
type Subscriber func(models.RebuildProgress)

// Coordinator is the RebuildCoordinator singleton.
type Coordinator struct {
	pipeline PipelineRunner
	timeout  time.Duration
	grace    time.Duration

	mu           sync.Mutex
	state        models.RebuildState
	cancelFn     context.CancelFunc
	timer        *time.Timer
	done         chan struct{}
	subscribers  []Subscriber
	threadSeq    int64
	lastProgress models.RebuildProgress
}

// New builds a Coordinator around pipeline. timeout and grace default to
// 30 minutes and 5 seconds respectively when zero.
func New(pipeline PipelineRunner, timeout, grace time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Coordinator{pipeline: pipeline, timeout: timeout, grace: grace}
}

// Subscribe registers fn to receive progress updates until the returned
// function is called.
func (c *Coordinator) Subscribe(fn Subscriber) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
	idx := len(c.subscribers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.subscribers) {
			c.subscribers[idx] = nil
		}
	}
}

// State returns a snapshot of the current RebuildState.
func (c *Coordinator) State() models.RebuildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LatestProgress returns the most recent RebuildProgress broadcast, so
// callers like the status endpoint can report Percentage() without
// subscribing.
func (c *Coordinator) LatestProgress() models.RebuildProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProgress
}

// IsTimeoutExceeded reports whether the active rebuild has run longer than
// minutes (or the coordinator's configured timeout when minutes is nil).
func (c *Coordinator) IsTimeoutExceeded(minutes *float64) bool {
	c.mu.Lock()
	state := c.state
	configured := c.timeout.Minutes()
	c.mu.Unlock()
	m := configured
	if minutes != nil {
		m = *minutes
	}
	return state.IsTimeoutExceeded(time.Now().UTC(), m)
}

// StartRebuild launches IndexingPipeline over folderPath on a worker
// goroutine. It is rejected with a CoreError of kind ErrValidation ("rebuild
// already active") if a rebuild is already running.
func (c *Coordinator) StartRebuild(folderPath string) error {
	c.mu.Lock()
	if c.state.IsActive {
		c.mu.Unlock()
		return models.NewCoreError(models.ErrValidation, nil, "rebuild already active")
	}

	ctx, cancel := context.WithCancel(context.Background())
	threadID := fmt.Sprintf("rebuild-%d", atomic.AddInt64(&c.threadSeq, 1))
	startedAt := time.Now().UTC()
	c.state = models.RebuildState{
		IsActive:   true,
		ThreadID:   threadID,
		StartedAt:  startedAt.Format(time.RFC3339Nano),
		FolderPath: folderPath,
	}
	c.cancelFn = cancel
	c.done = make(chan struct{})
	c.timer = time.AfterFunc(c.timeout, func() { c.onTimeout() })
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, folderPath, startedAt, done)
	return nil
}

func (c *Coordinator) run(ctx context.Context, folderPath string, startedAt time.Time, done chan struct{}) {
	defer close(done)

	stats, err := c.pipeline.Run(ctx, folderPath, func(p models.RebuildProgress) {
		p.ElapsedTime = formatElapsed(time.Since(startedAt))
		c.broadcast(p)
	})

	if ctx.Err() != nil {
		// Cancel or onTimeout cancelled ctx; it finalizes state and sends
		// the last broadcast through forceIdle once done is closed.
		return
	}

	c.mu.Lock()
	wasActive := c.state.IsActive
	c.clearLocked()
	c.mu.Unlock()
	if !wasActive {
		// Already force-finalized by Cancel or onTimeout.
		return
	}

	if err != nil {
		c.broadcast(models.RebuildProgress{
			Stage:       models.StageError,
			Message:     err.Error(),
			ElapsedTime: formatElapsed(time.Since(startedAt)),
		})
		return
	}

	c.broadcast(models.RebuildProgress{
		Stage:          models.StageCompleted,
		FilesProcessed: stats.FilesProcessed,
		ElapsedTime:    formatElapsed(time.Since(startedAt)),
	})
}

// Cancel requests cancellation of the running pipeline, waits up to the
// configured grace period for it to unwind, then forces Idle regardless.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if !c.state.IsActive {
		c.mu.Unlock()
		return
	}
	cancelFn := c.cancelFn
	done := c.done
	c.mu.Unlock()

	cancelFn()
	select {
	case <-done:
	case <-time.After(c.grace):
	}
	c.forceIdle(cancelledMessage)
}

func (c *Coordinator) onTimeout() {
	c.mu.Lock()
	if !c.state.IsActive {
		c.mu.Unlock()
		return
	}
	cancelFn := c.cancelFn
	done := c.done
	c.mu.Unlock()

	cancelFn()
	select {
	case <-done:
	case <-time.After(c.grace):
	}
	c.forceIdle(timeoutMessage)
}

func (c *Coordinator) forceIdle(message string) {
	c.mu.Lock()
	if !c.state.IsActive {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	c.mu.Unlock()

	stage := models.StageCompleted
	if message == timeoutMessage {
		stage = models.StageError
	}
	c.broadcast(models.RebuildProgress{Stage: stage, Message: message})
}

// clearLocked resets state to Idle and stops the timeout timer. Caller
// must hold c.mu.
func (c *Coordinator) clearLocked() {
	c.state = models.RebuildState{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancelFn = nil
}

func (c *Coordinator) broadcast(p models.RebuildProgress) {
	c.mu.Lock()
	c.lastProgress = p
	subs := append([]Subscriber(nil), c.subscribers...)
	c.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(p)
		}
	}
}

// formatElapsed renders d per the "<60s -> Ns; <3600s -> Mm Ss; else Hh Mm"
// display rule.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	if total < 3600 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}
	return fmt.Sprintf("%dh %dm", total/3600, (total%3600)/60)
}
