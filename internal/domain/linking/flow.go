package linking

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"fclink/internal/domain/customer"
	"fclink/internal/infrastructure/provider"
	"fclink/internal/shared/messages"
)

// Step is a stage of the institution selection and submission flow.
type Step int

const (
	// StepDisclosure shows the consent disclosure; progression is gated on
	// an explicit acknowledgment.
	StepDisclosure Step = iota + 1
	// StepSelection presents the institution catalog or manual id entry.
	StepSelection
	// StepWaiting polls for completion of the external authorization.
	StepWaiting
)

func (s Step) String() string {
	switch s {
	case StepDisclosure:
		return "disclosure"
	case StepSelection:
		return "selection"
	case StepWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// resolveTimeout bounds the provider calls made from the completion path,
// which runs outside any HTTP request context.
const resolveTimeout = 30 * time.Second

// FlowConfig wires a Flow's collaborators.
type FlowConfig struct {
	Customer *customer.Customer
	Store    customer.Store
	Tracker  *Tracker
	Provider provider.ClientInterface
	Poller   *Poller

	// ReturnURL is the redirect callback endpoint; the state id is appended
	// as the stateId query parameter.
	ReturnURL string

	// OnLinked is invoked after a completed session's accounts have been
	// retrieved from the provider. Optional.
	OnLinked func(stateID string, accounts []provider.Account)

	// Notifier signals terminal outcomes. Optional.
	Notifier Notifier

	// Messages overrides the notification copy. Defaults apply when nil.
	Messages *messages.Messages
}

// Flow coordinates one user-facing linking attempt end to end:
// disclosure -> institution selection -> waiting for external completion.
// All methods are safe for concurrent use; the poller callbacks re-enter
// the flow from their own goroutine.
type Flow struct {
	cfg FlowConfig
	env provider.Env

	mu       sync.Mutex
	step     Step
	consent  bool
	stateID  string
	authURL  string
	accounts []provider.Account
	linked   bool
	lastErr  string
}

// NewFlow starts a flow at the disclosure step for the given customer.
func NewFlow(cfg FlowConfig) *Flow {
	if cfg.Messages == nil {
		cfg.Messages = messages.Default()
	}
	return &Flow{
		cfg:  cfg,
		env:  provider.EnvFor(cfg.Customer.TestMode),
		step: StepDisclosure,
	}
}

// Step returns the current flow step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// AcknowledgeConsent records the user's consent checkbox state.
func (f *Flow) AcknowledgeConsent(agreed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consent = agreed
}

// Continue advances from disclosure to institution selection. The consent
// gate has no bypass: without acknowledgment the flow stays at disclosure.
func (f *Flow) Continue() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepDisclosure {
		return ErrInvalidStep
	}
	if !f.consent {
		return ErrConsentRequired
	}
	f.step = StepSelection
	return nil
}

// Institutions returns the catalog for the flow's environment partition.
func (f *Flow) Institutions() []Institution {
	return InstitutionsFor(f.cfg.Customer.TestMode)
}

// SelectInstitution submits an institution and transitions the flow to the
// waiting step. The institution id is validated first; invalid input is
// rejected before any session is created or any provider call is made.
// On success a pending session exists in the store, the provider session id
// is attached to it, and the poller is watching for the terminal status.
func (f *Flow) SelectInstitution(ctx context.Context, institutionID string) error {
	f.mu.Lock()
	if f.step != StepSelection {
		f.mu.Unlock()
		return ErrInvalidStep
	}
	f.mu.Unlock()

	if err := ValidateInstitutionID(institutionID); err != nil {
		return err
	}

	customerID := f.cfg.Customer.ID
	stateID, err := f.cfg.Tracker.CreateSession(ctx, customerID, map[string]string{
		"institution": institutionID,
	})
	if err != nil {
		return err
	}

	session, err := f.cfg.Provider.CreateLinkingSession(ctx, f.env, provider.LinkingSessionParams{
		CustomerID:    customerID,
		InstitutionID: institutionID,
		ReturnURL:     f.returnURLFor(stateID),
	})
	if err != nil {
		return err
	}
	if session.AuthorizationURL == "" {
		return fmt.Errorf("provider returned linking session %s without an authorization URL", session.ID)
	}

	if err := f.cfg.Tracker.AttachProviderSession(ctx, customerID, stateID, session.ID); err != nil {
		return err
	}

	// The poll outlives the initiating request; the redirect callback is the
	// only writer of the terminal status and the store the only channel.
	f.cfg.Poller.Watch(context.Background(), customerID, stateID, f.handleCompleted, f.handleFailed)

	f.mu.Lock()
	f.stateID = stateID
	f.authURL = session.AuthorizationURL
	f.linked = false
	f.accounts = nil
	f.lastErr = ""
	f.step = StepWaiting
	f.mu.Unlock()

	return nil
}

// Abandon cancels the wait and returns to institution selection. The active
// poll is cleared; the pending session record is discarded from the flow but
// not deleted from the store.
func (f *Flow) Abandon() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepWaiting {
		return ErrInvalidStep
	}
	f.cfg.Poller.Stop()
	f.stateID = ""
	f.authURL = ""
	f.step = StepSelection
	return nil
}

// Close tears the flow down, releasing the poller regardless of step.
func (f *Flow) Close() {
	f.cfg.Poller.Stop()
}

// Status is a snapshot of the flow for the UI.
type Status struct {
	Step             Step               `json:"step"`
	StepName         string             `json:"stepName"`
	StateID          string             `json:"stateId,omitempty"`
	AuthorizationURL string             `json:"authorizationUrl,omitempty"`
	Linked           bool               `json:"linked"`
	Accounts         []provider.Account `json:"accounts,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Status returns the current flow snapshot.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Step:             f.step,
		StepName:         f.step.String(),
		StateID:          f.stateID,
		AuthorizationURL: f.authURL,
		Linked:           f.linked,
		Accounts:         f.accounts,
		Error:            f.lastErr,
	}
}

// handleCompleted runs on the poller goroutine once the redirect callback
// has marked the session completed. It retrieves the linked accounts from
// the provider and surfaces them through Status and the OnLinked hook.
func (f *Flow) handleCompleted(stateID string) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	session, err := f.cfg.Store.GetSession(ctx, f.cfg.Customer.ID, stateID)
	if err != nil || session == nil {
		log.Printf("Flow: completed session %s not readable: %v", stateID, err)
		f.recordFailure("linked session could not be read back")
		return
	}

	var accounts []provider.Account
	if session.FCSessionID != "" {
		fc, err := f.cfg.Provider.RetrieveLinkingSession(ctx, f.env, session.FCSessionID)
		if err != nil {
			log.Printf("Flow: failed to retrieve linking session %s: %v", session.FCSessionID, err)
			f.recordFailure("failed to retrieve linked accounts")
			return
		}
		accounts = fc.Accounts
	}

	f.mu.Lock()
	f.linked = true
	f.accounts = accounts
	f.mu.Unlock()

	f.notify(ctx, f.cfg.Messages.LinkComplete, stateID)

	if f.cfg.OnLinked != nil {
		f.cfg.OnLinked(stateID, accounts)
	}
}

// handleFailed runs on the poller goroutine when the session reaches the
// failed status. The flow stays at the waiting step; the user can go back.
func (f *Flow) handleFailed(stateID string) {
	f.recordFailure("The bank connection process failed. Please try again.")

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	f.notify(ctx, f.cfg.Messages.LinkFailed, stateID)
}

func (f *Flow) recordFailure(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = msg
}

func (f *Flow) notify(ctx context.Context, text messages.MessageText, stateID string) {
	if f.cfg.Notifier == nil {
		return
	}
	data := map[string]string{"stateId": stateID, "customerId": f.cfg.Customer.ID}
	if err := f.cfg.Notifier.Send(ctx, text.Title, text.Body, data); err != nil {
		log.Printf("Flow: failed to send notification for %s: %v", stateID, err)
	}
}

func (f *Flow) returnURLFor(stateID string) string {
	return f.cfg.ReturnURL + "?stateId=" + url.QueryEscape(stateID)
}
