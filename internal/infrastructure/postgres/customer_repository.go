package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"fclink/internal/domain/customer"
)

const (
	activeCustomerKey = "active_customer_id"
	credentialKey     = "credential"
)

// CustomerRepository implements customer.Store on Postgres. Sessions live in
// their own table keyed by state id, so FindSessionByStateID is a direct
// lookup rather than the file store's scan; the observable contract is the
// same.
type CustomerRepository struct {
	db *DB
}

// Ensure CustomerRepository implements customer.Store
var _ customer.Store = (*CustomerRepository)(nil)

func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (id, email, name, testmode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = $2, name = $3, testmode = $4
	`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Email, c.Name, c.TestMode); err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}

	for _, s := range c.Sessions {
		if err := r.upsertSession(ctx, c.ID, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *CustomerRepository) upsertSession(ctx context.Context, customerID string, s *customer.Session) error {
	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO link_sessions (id, customer_id, fc_session_id, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET fc_session_id = $3, status = $4, metadata = $5
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, customerID, s.FCSessionID, string(s.Status), metadata, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	query := `SELECT id, email, name, testmode FROM customers WHERE id = $1`

	var c customer.Customer
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Email, &c.Name, &c.TestMode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	sessions, err := r.sessionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Sessions = sessions
	return &c, nil
}

func (r *CustomerRepository) GetAll(ctx context.Context) (map[string]*customer.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, name, testmode FROM customers`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*customer.Customer)
	for rows.Next() {
		var c customer.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.Name, &c.TestMode); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Sessions = make(map[string]*customer.Session)
		out[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}

	sessRows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, fc_session_id, status, metadata, created_at
		FROM link_sessions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer sessRows.Close()

	for sessRows.Next() {
		var customerID string
		s, err := scanSession(sessRows, &customerID)
		if err != nil {
			return nil, err
		}
		if c, ok := out[customerID]; ok {
			c.Sessions[s.ID] = s
		}
	}
	if err := sessRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return out, nil
}

func (r *CustomerRepository) Update(ctx context.Context, id string, upd customer.Update) error {
	query := `
		UPDATE customers
		SET email = COALESCE($2, email),
		    name = COALESCE($3, name),
		    testmode = COALESCE($4, testmode)
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, upd.Email, upd.Name, upd.TestMode)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return customer.ErrCustomerNotFound
	}
	return nil
}

func (r *CustomerRepository) InsertSession(ctx context.Context, customerID string, s *customer.Session) error {
	exists, err := r.customerExists(ctx, customerID)
	if err != nil {
		return err
	}
	if !exists {
		return customer.ErrCustomerNotFound
	}
	return r.upsertSession(ctx, customerID, s)
}

func (r *CustomerRepository) GetSession(ctx context.Context, customerID, stateID string) (*customer.Session, error) {
	query := `
		SELECT id, customer_id, fc_session_id, status, metadata, created_at
		FROM link_sessions
		WHERE id = $1 AND customer_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, stateID, customerID)
	var owner string
	s, err := scanSessionRow(row, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSession applies a partial session update inside a transaction so
// the monotonic status check and the write are atomic.
func (r *CustomerRepository) UpdateSession(ctx context.Context, customerID, stateID string, upd customer.SessionUpdate) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, customer_id, fc_session_id, status, metadata, created_at
		FROM link_sessions
		WHERE id = $1 AND customer_id = $2
		FOR UPDATE
	`
	row := tx.QueryRowContext(ctx, query, stateID, customerID)
	var owner string
	s, err := scanSessionRow(row, &owner)
	if err == sql.ErrNoRows {
		exists, existsErr := r.customerExists(ctx, customerID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return customer.ErrCustomerNotFound
		}
		return customer.ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	if err := customer.ApplySessionUpdate(s, upd); err != nil {
		return err
	}

	metadata, err := marshalMetadata(s.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE link_sessions SET fc_session_id = $2, status = $3, metadata = $4 WHERE id = $1
	`, s.ID, s.FCSessionID, string(s.Status), metadata)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return tx.Commit()
}

func (r *CustomerRepository) FindSessionByStateID(ctx context.Context, stateID string) (*customer.SessionOwner, error) {
	query := `
		SELECT id, customer_id, fc_session_id, status, metadata, created_at
		FROM link_sessions
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, stateID)
	var owner string
	s, err := scanSessionRow(row, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer.SessionOwner{CustomerID: owner, Session: s}, nil
}

func (r *CustomerRepository) SetActiveCustomerID(ctx context.Context, id string) error {
	return r.setState(ctx, activeCustomerKey, id)
}

func (r *CustomerRepository) GetActiveCustomerID(ctx context.Context) (string, error) {
	return r.getState(ctx, activeCustomerKey)
}

func (r *CustomerRepository) ClearActiveCustomerID(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = $1`, activeCustomerKey); err != nil {
		return fmt.Errorf("failed to clear active customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) SetCachedCredential(ctx context.Context, token string) error {
	return r.setState(ctx, credentialKey, token)
}

func (r *CustomerRepository) GetCachedCredential(ctx context.Context) (string, error) {
	return r.getState(ctx, credentialKey)
}

func (r *CustomerRepository) setState(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO app_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (r *CustomerRepository) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (r *CustomerRepository) customerExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check customer existence: %w", err)
	}
	return exists, nil
}

func (r *CustomerRepository) sessionsFor(ctx context.Context, customerID string) (map[string]*customer.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_id, fc_session_id, status, metadata, created_at
		FROM link_sessions
		WHERE customer_id = $1
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make(map[string]*customer.Session)
	for rows.Next() {
		var owner string
		s, err := scanSession(rows, &owner)
		if err != nil {
			return nil, err
		}
		sessions[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner, owner *string) (*customer.Session, error) {
	s, err := scanSessionRow(row, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return s, nil
}

func scanSessionRow(row rowScanner, owner *string) (*customer.Session, error) {
	var (
		s        customer.Session
		status   string
		metadata []byte
	)
	if err := row.Scan(&s.ID, owner, &s.FCSessionID, &status, &metadata, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = customer.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse session metadata: %w", err)
		}
	}
	return &s, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	return data, nil
}
