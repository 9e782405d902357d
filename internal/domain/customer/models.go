package customer

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStatusConflict   = errors.New("session status is already terminal")
)

// Status is the lifecycle state of a linking session.
// It starts at StatusPending and transitions at most once to a terminal
// value; terminal states never revert.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Session tracks a single bank-account linking attempt. The ID is generated
// locally and is globally unique; FCSessionID is assigned by the external
// provider once session creation succeeds.
type Session struct {
	ID          string            `json:"id"`
	FCSessionID string            `json:"fcId,omitempty"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// TransitionStatus applies a status change, enforcing monotonicity:
// pending may move to any state, setting the same value again is a no-op,
// and crossing from one terminal value to the other is rejected.
func (s *Session) TransitionStatus(next Status) error {
	if !next.Valid() {
		return errors.New("invalid session status: " + string(next))
	}
	if s.Status == next {
		return nil
	}
	if s.Status.Terminal() {
		return ErrStatusConflict
	}
	s.Status = next
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Customer is a record for an external-provider customer. TestMode pins the
// record to one provider environment for its lifetime; test and live records
// never interact. Sessions are keyed by their generated state id.
type Customer struct {
	ID       string              `json:"id"`
	Email    string              `json:"email,omitempty"`
	Name     string              `json:"name,omitempty"`
	TestMode bool                `json:"testmode"`
	Sessions map[string]*Session `json:"stateIds"`
}

// Clone returns a deep copy of the customer and its sessions.
func (c *Customer) Clone() *Customer {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Sessions = make(map[string]*Session, len(c.Sessions))
	for id, s := range c.Sessions {
		cp.Sessions[id] = s.Clone()
	}
	return &cp
}

// Update holds partial customer fields; nil pointers leave the stored value
// unchanged. Sessions are never replaced through Update.
type Update struct {
	Email    *string
	Name     *string
	TestMode *bool
}

// Apply merges the update into the customer.
func (c *Customer) Apply(upd Update) {
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.Name != nil {
		c.Name = *upd.Name
	}
	if upd.TestMode != nil {
		c.TestMode = *upd.TestMode
	}
}

// SessionUpdate holds partial session fields. Status changes go through
// TransitionStatus so monotonicity is enforced by every store backend.
type SessionUpdate struct {
	FCSessionID *string
	Status      *Status
	Metadata    map[string]string
}

// ApplySessionUpdate merges the update into the session. Metadata keys are
// merged, not replaced.
func ApplySessionUpdate(s *Session, upd SessionUpdate) error {
	if upd.Status != nil {
		if err := s.TransitionStatus(*upd.Status); err != nil {
			return err
		}
	}
	if upd.FCSessionID != nil {
		s.FCSessionID = *upd.FCSessionID
	}
	if len(upd.Metadata) > 0 {
		if s.Metadata == nil {
			s.Metadata = make(map[string]string, len(upd.Metadata))
		}
		for k, v := range upd.Metadata {
			s.Metadata[k] = v
		}
	}
	return nil
}

// SessionOwner pairs a session with the customer that created it. Returned
// by FindSessionByStateID, which is the only lookup path available to the
// redirect callback (it receives a bare state id).
type SessionOwner struct {
	CustomerID string   `json:"customerId"`
	Session    *Session `json:"session"`
}
