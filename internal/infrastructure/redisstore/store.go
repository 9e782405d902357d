package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fclink/internal/domain/customer"
)

const (
	customersKey      = "fclink:customers"
	activeCustomerKey = "fclink:active_customer_id"
	credentialKey     = "fclink:credential"
)

// Store is a Redis-backed implementation of customer.Store. Each customer is
// one JSON document in a hash field, so session updates are read-modify-write
// on the owning customer.
type Store struct {
	client *redis.Client
}

// Ensure Store implements customer.Store
var _ customer.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Save(ctx context.Context, c *customer.Customer) error {
	return s.write(ctx, c)
}

func (s *Store) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	data, err := s.client.HGet(ctx, customersKey, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return decode(data)
}

func (s *Store) GetAll(ctx context.Context) (map[string]*customer.Customer, error) {
	entries, err := s.client.HGetAll(ctx, customersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}

	out := make(map[string]*customer.Customer, len(entries))
	for id, data := range entries {
		c, err := decode(data)
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, upd customer.Update) error {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return customer.ErrCustomerNotFound
	}
	c.Apply(upd)
	return s.write(ctx, c)
}

func (s *Store) InsertSession(ctx context.Context, customerID string, session *customer.Session) error {
	c, err := s.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if c == nil {
		return customer.ErrCustomerNotFound
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]*customer.Session)
	}
	c.Sessions[session.ID] = session.Clone()
	return s.write(ctx, c)
}

func (s *Store) GetSession(ctx context.Context, customerID, stateID string) (*customer.Session, error) {
	c, err := s.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return c.Sessions[stateID].Clone(), nil
}

func (s *Store) UpdateSession(ctx context.Context, customerID, stateID string, upd customer.SessionUpdate) error {
	c, err := s.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if c == nil {
		return customer.ErrCustomerNotFound
	}
	session, ok := c.Sessions[stateID]
	if !ok {
		return customer.ErrSessionNotFound
	}
	if err := customer.ApplySessionUpdate(session, upd); err != nil {
		return err
	}
	return s.write(ctx, c)
}

func (s *Store) FindSessionByStateID(ctx context.Context, stateID string) (*customer.SessionOwner, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for id, c := range all {
		if session, ok := c.Sessions[stateID]; ok {
			return &customer.SessionOwner{CustomerID: id, Session: session}, nil
		}
	}
	return nil, nil
}

func (s *Store) SetActiveCustomerID(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, activeCustomerKey, id, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active customer: %w", err)
	}
	return nil
}

func (s *Store) GetActiveCustomerID(ctx context.Context) (string, error) {
	return s.getString(ctx, activeCustomerKey)
}

func (s *Store) ClearActiveCustomerID(ctx context.Context) error {
	if err := s.client.Del(ctx, activeCustomerKey).Err(); err != nil {
		return fmt.Errorf("failed to clear active customer: %w", err)
	}
	return nil
}

func (s *Store) SetCachedCredential(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, credentialKey, token, 0).Err(); err != nil {
		return fmt.Errorf("failed to set credential: %w", err)
	}
	return nil
}

func (s *Store) GetCachedCredential(ctx context.Context) (string, error) {
	return s.getString(ctx, credentialKey)
}

func (s *Store) getString(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) write(ctx context.Context, c *customer.Customer) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal customer %s: %w", c.ID, err)
	}
	if err := s.client.HSet(ctx, customersKey, c.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to save customer %s: %w", c.ID, err)
	}
	return nil
}

func decode(data string) (*customer.Customer, error) {
	var c customer.Customer
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to parse customer record: %w", err)
	}
	if c.Sessions == nil {
		c.Sessions = make(map[string]*customer.Session)
	}
	return &c, nil
}
