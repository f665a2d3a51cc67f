// Package queue serializes turn execution per session: at most one turn
// runs against a session at a time, with cancellation and graceful
// shutdown.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrTurnActive is returned when a turn is already running on the
	// session.
	ErrTurnActive = errors.New("a turn is already being processed for this session")

	// ErrShuttingDown is returned for submissions after Stop.
	ErrShuttingDown = errors.New("executor is shutting down")
)

// DefaultTurnTimeout bounds one turn's wall time.
const DefaultTurnTimeout = 5 * time.Minute

// TurnFunc is the work executed for one turn. The passed context is
// cancelled on caller cancellation, timeout, or shutdown.
type TurnFunc func(ctx context.Context) error

// TurnExecutor enforces the one-turn-per-session constraint. Turns run on
// the caller's goroutine; the executor only arbitrates the per-session
// slot and tracks in-flight turns for Stop.
type TurnExecutor struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc // sessionID → cancel
	wg      sync.WaitGroup
	stopped bool
}

// NewTurnExecutor creates an executor. timeout <= 0 uses
// DefaultTurnTimeout.
func NewTurnExecutor(timeout time.Duration) *TurnExecutor {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &TurnExecutor{
		timeout: timeout,
		logger:  slog.Default().With("component", "turn_executor"),
		active:  make(map[string]context.CancelFunc),
	}
}

// Run executes fn holding the session's turn slot. Returns ErrTurnActive
// without running fn when the session already has a turn in flight, and
// ErrShuttingDown after Stop.
func (e *TurnExecutor) Run(ctx context.Context, sessionID string, fn TurnFunc) error {
	execCtx, err := e.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer e.release(sessionID)

	return fn(execCtx)
}

// acquire claims the session slot and registers the turn for cancellation
// and shutdown tracking.
func (e *TurnExecutor) acquire(ctx context.Context, sessionID string) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrShuttingDown
	}
	if _, ok := e.active[sessionID]; ok {
		return nil, ErrTurnActive
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	e.active[sessionID] = cancel
	e.wg.Add(1)
	return execCtx, nil
}

// release frees the session slot.
func (e *TurnExecutor) release(sessionID string) {
	e.mu.Lock()
	if cancel, ok := e.active[sessionID]; ok {
		cancel()
		delete(e.active, sessionID)
	}
	e.mu.Unlock()
	e.wg.Done()
}

// Cancel cancels the session's in-flight turn, if any. Returns whether a
// turn was found.
func (e *TurnExecutor) Cancel(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.active[sessionID]
	if ok {
		cancel()
	}
	return ok
}

// ActiveCount reports how many turns are in flight.
func (e *TurnExecutor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Stop rejects new turns, cancels all in-flight ones, and waits for them
// to drain. Safe to call multiple times.
func (e *TurnExecutor) Stop() {
	e.mu.Lock()
	e.stopped = true
	for _, cancel := range e.active {
		cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("turn executor stopped")
}
