package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fclink/internal/domain/customer"
	"fclink/internal/infrastructure/filestore"
	"fclink/internal/infrastructure/provider"
)

// MockProvider implements provider.ClientInterface for handler tests.
type MockProvider struct {
	CreateCustomerFunc               func(ctx context.Context, env provider.Env, name, email string) (*provider.Customer, error)
	ListCustomersByEmailFunc         func(ctx context.Context, env provider.Env, email string) ([]provider.Customer, error)
	RetrieveCustomerFunc             func(ctx context.Context, env provider.Env, id string) (*provider.Customer, error)
	ListPaymentMethodsFunc           func(ctx context.Context, env provider.Env, customerID string) ([]provider.PaymentMethod, error)
	CreateLinkingSessionFunc         func(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error)
	RetrieveLinkingSessionFunc       func(ctx context.Context, env provider.Env, id string) (*provider.LinkingSession, error)
	CreateAndAttachPaymentMethodFunc func(ctx context.Context, env provider.Env, accountID, customerID string) (*provider.PaymentMethod, error)
}

func (m *MockProvider) CreateCustomer(ctx context.Context, env provider.Env, name, email string) (*provider.Customer, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, env, name, email)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) ListCustomersByEmail(ctx context.Context, env provider.Env, email string) ([]provider.Customer, error) {
	if m.ListCustomersByEmailFunc != nil {
		return m.ListCustomersByEmailFunc(ctx, env, email)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) RetrieveCustomer(ctx context.Context, env provider.Env, id string) (*provider.Customer, error) {
	if m.RetrieveCustomerFunc != nil {
		return m.RetrieveCustomerFunc(ctx, env, id)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) ListPaymentMethods(ctx context.Context, env provider.Env, customerID string) ([]provider.PaymentMethod, error) {
	if m.ListPaymentMethodsFunc != nil {
		return m.ListPaymentMethodsFunc(ctx, env, customerID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockProvider) CreateLinkingSession(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error) {
	if m.CreateLinkingSessionFunc != nil {
		return m.CreateLinkingSessionFunc(ctx, env, params)
	}
	return &provider.LinkingSession{ID: "fcsess_1", AuthorizationURL: "https://auth.example.com/s/1"}, nil
}

func (m *MockProvider) RetrieveLinkingSession(ctx context.Context, env provider.Env, id string) (*provider.LinkingSession, error) {
	if m.RetrieveLinkingSessionFunc != nil {
		return m.RetrieveLinkingSessionFunc(ctx, env, id)
	}
	return &provider.LinkingSession{ID: id}, nil
}

func (m *MockProvider) CreateAndAttachPaymentMethod(ctx context.Context, env provider.Env, accountID, customerID string) (*provider.PaymentMethod, error) {
	if m.CreateAndAttachPaymentMethodFunc != nil {
		return m.CreateAndAttachPaymentMethodFunc(ctx, env, accountID, customerID)
	}
	return nil, errors.New("not implemented")
}

func newTestStore(t *testing.T) customer.Store {
	t.Helper()
	store, err := filestore.New(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seedCustomer(t *testing.T, store customer.Store, id string) {
	t.Helper()
	err := store.Save(context.Background(), &customer.Customer{
		ID:       id,
		Email:    "test@example.com",
		Name:     "Test Customer",
		TestMode: true,
	})
	if err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
