package linking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fclink/internal/domain/customer"
)

// Tracker mints linking-session state ids and registers them under a
// customer record. Ids are 128-bit random UUIDs, so they are globally unique
// across customers and environments; a returned id is immediately resolvable
// through Store.FindSessionByStateID.
type Tracker struct {
	store customer.Store
}

func NewTracker(store customer.Store) *Tracker {
	return &Tracker{store: store}
}

// CreateSession generates a fresh state id and persists a pending session
// under the given customer. Returns customer.ErrCustomerNotFound when the
// customer id does not resolve.
func (t *Tracker) CreateSession(ctx context.Context, customerID string, initial map[string]string) (string, error) {
	c, err := t.store.GetByID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to load customer %s: %w", customerID, err)
	}
	if c == nil {
		return "", customer.ErrCustomerNotFound
	}

	stateID := uuid.NewString()
	session := &customer.Session{
		ID:        stateID,
		Status:    customer.StatusPending,
		Metadata:  initial,
		CreatedAt: time.Now().UTC(),
	}

	if err := t.store.InsertSession(ctx, customerID, session); err != nil {
		return "", fmt.Errorf("failed to register session %s: %w", stateID, err)
	}

	return stateID, nil
}

// AttachProviderSession records the external provider's session id on an
// existing session, once session creation with the provider has succeeded.
func (t *Tracker) AttachProviderSession(ctx context.Context, customerID, stateID, fcSessionID string) error {
	upd := customer.SessionUpdate{FCSessionID: &fcSessionID}
	if err := t.store.UpdateSession(ctx, customerID, stateID, upd); err != nil {
		return fmt.Errorf("failed to attach provider session to %s: %w", stateID, err)
	}
	return nil
}
