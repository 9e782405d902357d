package linking

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"fclink/internal/domain/customer"
)

const defaultPollInterval = 1 * time.Second

var (
	pollMeter       = otel.Meter("fclink/linking")
	pollResolved, _ = pollMeter.Int64Counter("linking.poll.resolved",
		metric.WithDescription("Linking polls resolved by terminal status"),
	)
)

// Poller periodically re-reads a session's persisted status until it
// observes a terminal state, then invokes the matching callback exactly once
// and stops. The store is the only synchronization point with the redirect
// callback; the poller holds no handle to the context that writes the
// terminal status.
//
// At most one poll is active per Poller. Starting a new watch replaces the
// previous one, cancelling its ticker first.
type Poller struct {
	store    customer.Store
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stateID string
	wg      sync.WaitGroup
}

// NewPoller creates a poller reading from store at the given interval.
// A non-positive interval falls back to the 1 second default.
func NewPoller(store customer.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{store: store, interval: interval}
}

// Watch starts polling the given session. Any previously active watch is
// cancelled before the new one starts. onCompleted and onFailed are invoked
// from the polling goroutine, at most one of them, at most once.
func (p *Poller) Watch(ctx context.Context, customerID, stateID string, onCompleted, onFailed func(stateID string)) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stateID = stateID
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.clear(stateID, cancel)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return

			case <-ticker.C:
				session, err := p.store.GetSession(watchCtx, customerID, stateID)
				if err != nil {
					// Storage hiccups are treated as a miss; keep polling.
					log.Printf("Poller: failed to read session %s: %v", stateID, err)
					continue
				}
				if session == nil {
					continue
				}

				switch session.Status {
				case customer.StatusCompleted:
					pollResolved.Add(watchCtx, 1, metric.WithAttributes(attribute.String("status", "completed")))
					if onCompleted != nil {
						onCompleted(stateID)
					}
					return
				case customer.StatusFailed:
					pollResolved.Add(watchCtx, 1, metric.WithAttributes(attribute.String("status", "failed")))
					if onFailed != nil {
						onFailed(stateID)
					}
					return
				}
			}
		}
	}()
}

// Stop cancels the active watch, if any. Safe to call multiple times and
// required on teardown so no ticker leaks.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		p.stateID = ""
	}
}

// StateID returns the state id currently being watched, or "".
func (p *Poller) StateID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateID
}

// Wait blocks until all polling goroutines have exited. Used on shutdown
// and in tests.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// clear resets tracking state if this watch is still the active one.
func (p *Poller) clear(stateID string, cancel context.CancelFunc) {
	cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stateID == stateID {
		p.stateID = ""
		p.cancel = nil
	}
}
