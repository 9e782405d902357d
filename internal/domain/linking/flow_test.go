package linking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fclink/internal/domain/customer"
	"fclink/internal/infrastructure/provider"
)

// MockProvider implements provider.ClientInterface for flow tests.
type MockProvider struct {
	CreateLinkingSessionFunc   func(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error)
	RetrieveLinkingSessionFunc func(ctx context.Context, env provider.Env, id string) (*provider.LinkingSession, error)
}

func (m *MockProvider) CreateCustomer(ctx context.Context, env provider.Env, name, email string) (*provider.Customer, error) {
	return nil, errors.New("not implemented")
}

func (m *MockProvider) ListCustomersByEmail(ctx context.Context, env provider.Env, email string) ([]provider.Customer, error) {
	return nil, errors.New("not implemented")
}

func (m *MockProvider) RetrieveCustomer(ctx context.Context, env provider.Env, id string) (*provider.Customer, error) {
	return nil, errors.New("not implemented")
}

func (m *MockProvider) ListPaymentMethods(ctx context.Context, env provider.Env, customerID string) ([]provider.PaymentMethod, error) {
	return nil, errors.New("not implemented")
}

func (m *MockProvider) CreateLinkingSession(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error) {
	if m.CreateLinkingSessionFunc != nil {
		return m.CreateLinkingSessionFunc(ctx, env, params)
	}
	return &provider.LinkingSession{ID: "fcsess_1", AuthorizationURL: "https://auth.example.com/session/1"}, nil
}

func (m *MockProvider) RetrieveLinkingSession(ctx context.Context, env provider.Env, id string) (*provider.LinkingSession, error) {
	if m.RetrieveLinkingSessionFunc != nil {
		return m.RetrieveLinkingSessionFunc(ctx, env, id)
	}
	return &provider.LinkingSession{ID: id}, nil
}

func (m *MockProvider) CreateAndAttachPaymentMethod(ctx context.Context, env provider.Env, accountID, customerID string) (*provider.PaymentMethod, error) {
	return nil, errors.New("not implemented")
}

func newTestFlow(t *testing.T, store customer.Store, mock *MockProvider) *Flow {
	t.Helper()
	c, err := store.GetByID(context.Background(), "cus_1")
	if err != nil || c == nil {
		t.Fatalf("failed to load seeded customer: %v", err)
	}
	flow := NewFlow(FlowConfig{
		Customer:  c,
		Store:     store,
		Tracker:   NewTracker(store),
		Provider:  mock,
		Poller:    NewPoller(store, 5*time.Millisecond),
		ReturnURL: "http://localhost:8080/linking/redirect",
	})
	t.Cleanup(flow.Close)
	return flow
}

func TestFlow_ConsentGate(t *testing.T) {
	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")
	flow := newTestFlow(t, store, &MockProvider{})

	if flow.Step() != StepDisclosure {
		t.Fatalf("new flow step = %v, want disclosure", flow.Step())
	}

	// Continue without acknowledgment stays at disclosure.
	if err := flow.Continue(); err != ErrConsentRequired {
		t.Errorf("Continue() error = %v, want ErrConsentRequired", err)
	}
	if flow.Step() != StepDisclosure {
		t.Errorf("step = %v after rejected continue, want disclosure", flow.Step())
	}

	// Acknowledging then retracting keeps the gate closed.
	flow.AcknowledgeConsent(true)
	flow.AcknowledgeConsent(false)
	if err := flow.Continue(); err != ErrConsentRequired {
		t.Errorf("Continue() error = %v after retraction, want ErrConsentRequired", err)
	}

	flow.AcknowledgeConsent(true)
	if err := flow.Continue(); err != nil {
		t.Fatalf("Continue() failed: %v", err)
	}
	if flow.Step() != StepSelection {
		t.Errorf("step = %v, want selection", flow.Step())
	}
}

func TestFlow_SelectInstitution_InvalidID(t *testing.T) {
	providerCalled := false
	mock := &MockProvider{
		CreateLinkingSessionFunc: func(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error) {
			providerCalled = true
			return nil, errors.New("should not be reached")
		},
	}

	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")
	flow := newTestFlow(t, store, mock)
	flow.AcknowledgeConsent(true)
	if err := flow.Continue(); err != nil {
		t.Fatalf("Continue() failed: %v", err)
	}

	tests := []struct {
		name          string
		institutionID string
	}{
		{"empty id", ""},
		{"wrong prefix", "bcinst_test"},
		{"bare name", "some-bank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := flow.SelectInstitution(context.Background(), tt.institutionID)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("SelectInstitution(%q) error = %v, want ValidationError", tt.institutionID, err)
			}
			if flow.Step() != StepSelection {
				t.Errorf("step = %v after rejected selection, want selection", flow.Step())
			}
		})
	}

	if providerCalled {
		t.Error("provider was called for invalid institution id")
	}

	// No session may exist after rejected submissions.
	c, err := store.GetByID(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if len(c.Sessions) != 0 {
		t.Errorf("store has %d sessions after rejected submissions, want 0", len(c.Sessions))
	}
}

func TestFlow_SelectInstitution_WrongStep(t *testing.T) {
	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")
	flow := newTestFlow(t, store, &MockProvider{})

	err := flow.SelectInstitution(context.Background(), "fcinst_test")
	if err != ErrInvalidStep {
		t.Errorf("SelectInstitution() at disclosure error = %v, want ErrInvalidStep", err)
	}
}

func TestFlow_HappyPath(t *testing.T) {
	var gotReturnURL string
	mock := &MockProvider{
		CreateLinkingSessionFunc: func(ctx context.Context, env provider.Env, params provider.LinkingSessionParams) (*provider.LinkingSession, error) {
			if env != provider.EnvTest {
				t.Errorf("env = %v, want test", env)
			}
			gotReturnURL = params.ReturnURL
			return &provider.LinkingSession{ID: "fcsess_1", AuthorizationURL: "https://auth.example.com/session/1"}, nil
		},
		RetrieveLinkingSessionFunc: func(ctx context.Context, env provider.Env, id string) (*provider.LinkingSession, error) {
			return &provider.LinkingSession{
				ID:       id,
				Accounts: []provider.Account{{ID: "fca_1", Institution: "Test Institution", Last4: "6789"}},
			}, nil
		},
	}

	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")

	linked := make(chan []provider.Account, 1)
	c, _ := store.GetByID(context.Background(), "cus_1")
	flow := NewFlow(FlowConfig{
		Customer:  c,
		Store:     store,
		Tracker:   NewTracker(store),
		Provider:  mock,
		Poller:    NewPoller(store, 5*time.Millisecond),
		ReturnURL: "http://localhost:8080/linking/redirect",
		OnLinked:  func(stateID string, accounts []provider.Account) { linked <- accounts },
	})
	defer flow.Close()

	flow.AcknowledgeConsent(true)
	if err := flow.Continue(); err != nil {
		t.Fatalf("Continue() failed: %v", err)
	}
	if err := flow.SelectInstitution(context.Background(), "fcinst_test"); err != nil {
		t.Fatalf("SelectInstitution() failed: %v", err)
	}

	status := flow.Status()
	if status.Step != StepWaiting {
		t.Fatalf("step = %v, want waiting", status.Step)
	}
	if status.AuthorizationURL != "https://auth.example.com/session/1" {
		t.Errorf("authorization URL = %q", status.AuthorizationURL)
	}
	if status.StateID == "" {
		t.Fatal("no state id after selection")
	}
	if !strings.Contains(gotReturnURL, "stateId="+status.StateID) {
		t.Errorf("return URL %q does not carry the state id", gotReturnURL)
	}

	// The session record carries the provider session id before completion.
	session, err := store.GetSession(context.Background(), "cus_1", status.StateID)
	if err != nil || session == nil {
		t.Fatalf("GetSession() failed: %v", err)
	}
	if session.FCSessionID != "fcsess_1" {
		t.Errorf("FCSessionID = %q, want fcsess_1", session.FCSessionID)
	}

	// Simulate the redirect callback completing the session in the store.
	setStatus(t, store, "cus_1", status.StateID, customer.StatusCompleted)

	select {
	case accounts := <-linked:
		if len(accounts) != 1 || accounts[0].ID != "fca_1" {
			t.Errorf("linked accounts = %+v", accounts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnLinked never fired")
	}

	status = flow.Status()
	if !status.Linked {
		t.Error("status not linked after completion")
	}
	if len(status.Accounts) != 1 {
		t.Errorf("status has %d accounts, want 1", len(status.Accounts))
	}
}

func TestFlow_FailedSession(t *testing.T) {
	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")
	flow := newTestFlow(t, store, &MockProvider{})

	flow.AcknowledgeConsent(true)
	if err := flow.Continue(); err != nil {
		t.Fatalf("Continue() failed: %v", err)
	}
	if err := flow.SelectInstitution(context.Background(), "fcinst_test"); err != nil {
		t.Fatalf("SelectInstitution() failed: %v", err)
	}

	stateID := flow.Status().StateID
	setStatus(t, store, "cus_1", stateID, customer.StatusFailed)

	deadline := time.After(2 * time.Second)
	for {
		status := flow.Status()
		if status.Error != "" {
			if status.Linked {
				t.Error("failed flow reports linked")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("failure never surfaced in status")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFlow_Abandon(t *testing.T) {
	store := newTestStore(t)
	seedCustomer(t, store, "cus_1")
	flow := newTestFlow(t, store, &MockProvider{})

	if err := flow.Abandon(); err != ErrInvalidStep {
		t.Errorf("Abandon() at disclosure error = %v, want ErrInvalidStep", err)
	}

	flow.AcknowledgeConsent(true)
	if err := flow.Continue(); err != nil {
		t.Fatalf("Continue() failed: %v", err)
	}
	if err := flow.SelectInstitution(context.Background(), "fcinst_test"); err != nil {
		t.Fatalf("SelectInstitution() failed: %v", err)
	}

	stateID := flow.Status().StateID
	if err := flow.Abandon(); err != nil {
		t.Fatalf("Abandon() failed: %v", err)
	}
	if flow.Step() != StepSelection {
		t.Errorf("step = %v after abandon, want selection", flow.Step())
	}

	// The pending record stays in the store; only the watch is cancelled.
	session, err := store.GetSession(context.Background(), "cus_1", stateID)
	if err != nil || session == nil {
		t.Fatalf("abandoned session missing from store: %v", err)
	}
	if session.Status != customer.StatusPending {
		t.Errorf("abandoned session status = %q, want pending", session.Status)
	}
}
