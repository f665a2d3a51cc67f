// Package cleanup provides the session lifecycle sweeper.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/growbal/discovery/pkg/services"
)

// Service periodically deactivates sessions whose last activity is older
// than the configured idle window. Deactivation is idempotent and safe to
// run from multiple replicas.
type Service struct {
	sessions      *services.SessionService
	idleAfter     time.Duration
	sweepInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a sweeper deactivating sessions idle for longer than
// idleAfter, checked every sweepInterval.
func NewService(sessions *services.SessionService, idleAfter, sweepInterval time.Duration) *Service {
	return &Service{
		sessions:      sessions,
		idleAfter:     idleAfter,
		sweepInterval: sweepInterval,
	}
}

// Start launches the background sweep loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Session sweeper started",
		"idle_after", s.idleAfter,
		"sweep_interval", s.sweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Session sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one deactivation pass. The database write uses a background
// context so an in-progress pass survives shutdown signalling.
func (s *Service) Sweep(_ context.Context) {
	count, err := s.sessions.DeactivateOlderThan(context.Background(), s.idleAfter)
	if err != nil {
		slog.Error("Sweep: deactivating idle sessions failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Sweep: deactivated idle sessions", "count", count)
	}
}
