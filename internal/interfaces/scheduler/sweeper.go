package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"fclink/internal/domain/customer"
)

var (
	sweeperMeter     = otel.Meter("fclink/sweeper")
	sweptSessions, _ = sweeperMeter.Int64Counter("linking.sweeper.swept",
		metric.WithDescription("Pending sessions marked failed by the sweeper"),
	)
)

// Sweeper periodically fails pending linking sessions older than a configured
// age. Disabled by default: without it, pending sessions wait indefinitely,
// which is the baseline behavior.
type Sweeper struct {
	store         customer.Store
	maxPendingAge time.Duration
	interval      time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(store customer.Store, maxPendingAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:         store,
		maxPendingAge: maxPendingAge,
		interval:      interval,
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("Sweeper started (max pending age %s, interval %s)", s.maxPendingAge, s.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Shutdown stops the sweep loop, waiting up to timeout for the current sweep.
func (s *Sweeper) Shutdown(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Sweeper stopped")
	case <-time.After(timeout):
		log.Println("Sweeper shutdown timed out")
	}
}

// sweep walks every customer's sessions and fails the stale pending ones.
// A session that completed between the read and the write is left alone by
// the store's monotonic status check.
func (s *Sweeper) sweep(ctx context.Context) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		log.Printf("Sweeper: failed to list customers: %v", err)
		return
	}

	cutoff := time.Now().Add(-s.maxPendingAge)
	failed := customer.StatusFailed

	var swept int
	for customerID, c := range all {
		for stateID, session := range c.Sessions {
			if session.Status != customer.StatusPending || session.CreatedAt.After(cutoff) {
				continue
			}
			err := s.store.UpdateSession(ctx, customerID, stateID, customer.SessionUpdate{Status: &failed})
			if err != nil {
				log.Printf("Sweeper: failed to expire session %s: %v", stateID, err)
				continue
			}
			swept++
		}
	}

	if swept > 0 {
		sweptSessions.Add(ctx, int64(swept))
		log.Printf("Sweeper: marked %d stale pending sessions failed", swept)
	}
}
