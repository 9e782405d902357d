package customer

import "context"

// Store defines durable persistence for customer records and their linking
// sessions. This interface is defined in the domain layer and implemented in
// the infrastructure layer (file, postgres, redis backends).
//
// Two invariants bind every implementation:
//   - Save is best-effort: an unavailable storage medium must not fail the
//     caller (the write is logged and dropped, reads then behave as a miss).
//   - UpdateSession enforces monotonic status via ApplySessionUpdate; a
//     session that reached a terminal status never leaves it.
type Store interface {
	// Save upserts a customer record.
	Save(ctx context.Context, c *Customer) error

	// GetByID retrieves a customer by id. Returns (nil, nil) on a miss.
	GetByID(ctx context.Context, id string) (*Customer, error)

	// GetAll returns all stored customers keyed by id.
	GetAll(ctx context.Context) (map[string]*Customer, error)

	// Update applies partial fields to an existing customer.
	// Returns ErrCustomerNotFound if the id is unknown.
	Update(ctx context.Context, id string, upd Update) error

	// InsertSession registers a new session under the given customer.
	// Returns ErrCustomerNotFound if the customer is unknown.
	InsertSession(ctx context.Context, customerID string, s *Session) error

	// GetSession retrieves one session. Returns (nil, nil) on a miss.
	GetSession(ctx context.Context, customerID, stateID string) (*Session, error)

	// UpdateSession applies partial fields to an existing session.
	// Returns ErrCustomerNotFound / ErrSessionNotFound on unknown ids and
	// ErrStatusConflict on an invalid status transition.
	UpdateSession(ctx context.Context, customerID, stateID string, upd SessionUpdate) error

	// FindSessionByStateID locates a session by its state id alone, scanning
	// across all customers. Returns (nil, nil) when no customer owns it.
	FindSessionByStateID(ctx context.Context, stateID string) (*SessionOwner, error)

	// Active-customer pointer. GetActiveCustomerID returns "" when unset.
	SetActiveCustomerID(ctx context.Context, id string) error
	GetActiveCustomerID(ctx context.Context) (string, error)
	ClearActiveCustomerID(ctx context.Context) error

	// Cached admin credential token. GetCachedCredential returns "" when unset.
	SetCachedCredential(ctx context.Context, token string) error
	GetCachedCredential(ctx context.Context) (string, error)
}
