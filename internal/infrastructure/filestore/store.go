package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"fclink/internal/domain/customer"
)

// fileState is the on-disk layout: the full customer map, the
// active-customer pointer, and the cached admin credential.
type fileState struct {
	Customers        map[string]*customer.Customer `json:"customers"`
	ActiveCustomerID string                        `json:"activeCustomerId,omitempty"`
	Credential       string                        `json:"credential,omitempty"`
}

// Store is a file-backed implementation of customer.Store. State is held in
// memory behind a mutex and flushed to a JSON file after every mutation.
// Flushes are best-effort: an unavailable file is logged, never surfaced.
// Callers keep working against the in-memory state and a later flush picks
// the changes up.
type Store struct {
	path string

	mu    sync.RWMutex
	state fileState
}

// Ensure Store implements customer.Store
var _ customer.Store = (*Store)(nil)

// New loads the store from path, starting empty if the file does not exist.
// A file that exists but cannot be parsed is an error: silently discarding
// previously persisted sessions would break redirect callbacks in flight.
func New(path string) (*Store, error) {
	s := &Store{
		path: path,
		state: fileState{
			Customers: make(map[string]*customer.Customer),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		log.Printf("Store: failed to read %s, starting empty: %v", path, err)
		return s, nil
	}

	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}
	if s.state.Customers == nil {
		s.state.Customers = make(map[string]*customer.Customer)
	}

	return s, nil
}

// flush writes the state to disk via a temp-file rename. Best-effort.
// Callers must hold the lock.
func (s *Store) flush() {
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		log.Printf("Store: failed to marshal state: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Printf("Store: failed to create directory for %s: %v", s.path, err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Printf("Store: failed to write %s: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("Store: failed to replace %s: %v", s.path, err)
	}
}

func (s *Store) Save(ctx context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := c.Clone()
	if cp.Sessions == nil {
		cp.Sessions = make(map[string]*customer.Session)
	}
	s.state.Customers[cp.ID] = cp
	s.flush()
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Customers[id].Clone(), nil
}

func (s *Store) GetAll(ctx context.Context) (map[string]*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*customer.Customer, len(s.state.Customers))
	for id, c := range s.state.Customers {
		out[id] = c.Clone()
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, upd customer.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Customers[id]
	if !ok {
		return customer.ErrCustomerNotFound
	}
	c.Apply(upd)
	s.flush()
	return nil
}

func (s *Store) InsertSession(ctx context.Context, customerID string, session *customer.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Customers[customerID]
	if !ok {
		return customer.ErrCustomerNotFound
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]*customer.Session)
	}
	c.Sessions[session.ID] = session.Clone()
	s.flush()
	return nil
}

func (s *Store) GetSession(ctx context.Context, customerID, stateID string) (*customer.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.state.Customers[customerID]
	if !ok {
		return nil, nil
	}
	return c.Sessions[stateID].Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, customerID, stateID string, upd customer.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.state.Customers[customerID]
	if !ok {
		return customer.ErrCustomerNotFound
	}
	session, ok := c.Sessions[stateID]
	if !ok {
		return customer.ErrSessionNotFound
	}
	if err := customer.ApplySessionUpdate(session, upd); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Store) FindSessionByStateID(ctx context.Context, stateID string) (*customer.SessionOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Linear scan: the redirect callback only carries the state id, so
	// there is no owning-customer key to look up by.
	for id, c := range s.state.Customers {
		if session, ok := c.Sessions[stateID]; ok {
			return &customer.SessionOwner{CustomerID: id, Session: session.Clone()}, nil
		}
	}
	return nil, nil
}

func (s *Store) SetActiveCustomerID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveCustomerID = id
	s.flush()
	return nil
}

func (s *Store) GetActiveCustomerID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ActiveCustomerID, nil
}

func (s *Store) ClearActiveCustomerID(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveCustomerID = ""
	s.flush()
	return nil
}

func (s *Store) SetCachedCredential(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Credential = token
	s.flush()
	return nil
}

func (s *Store) GetCachedCredential(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Credential, nil
}
