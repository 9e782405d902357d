package http

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"fclink/internal/domain/customer"
	"fclink/internal/domain/linking"
	"fclink/internal/infrastructure/provider"
	"fclink/internal/shared/messages"
	"fclink/internal/web"
)

// LinkingOptions carries the flow collaborators that are fixed for the
// lifetime of the server.
type LinkingOptions struct {
	ReturnURL    string
	PollInterval time.Duration
	Notifier     linking.Notifier
	Messages     *messages.Messages
	OnLinked     func(stateID string, accounts []provider.Account)
}

// LinkingHandler drives the institution selection flow over HTTP. One flow
// is live per customer at a time; opening a new one tears down the previous.
type LinkingHandler struct {
	store    customer.Store
	provider provider.ClientInterface
	tracker  *linking.Tracker
	opts     LinkingOptions

	mu    sync.Mutex
	flows map[string]*linking.Flow
}

func NewLinkingHandler(store customer.Store, client provider.ClientInterface, opts LinkingOptions) *LinkingHandler {
	return &LinkingHandler{
		store:    store,
		provider: client,
		tracker:  linking.NewTracker(store),
		opts:     opts,
		flows:    make(map[string]*linking.Flow),
	}
}

// Close tears down every live flow. Called on server shutdown.
func (h *LinkingHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.flows {
		f.Close()
	}
	h.flows = make(map[string]*linking.Flow)
}

type FlowRequest struct {
	CustomerID string `json:"customerId"`
}

type ConsentRequest struct {
	CustomerID string `json:"customerId"`
	Agreed     bool   `json:"agreed"`
}

type SelectRequest struct {
	CustomerID    string `json:"customerId"`
	InstitutionID string `json:"institutionId"`
}

// HandleFlows opens a flow at the disclosure step for a customer. An
// existing flow for the same customer is closed first.
func (h *LinkingHandler) HandleFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.store.GetByID(r.Context(), req.CustomerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, customer.ErrCustomerNotFound)
		return
	}

	flow := linking.NewFlow(linking.FlowConfig{
		Customer:  c,
		Store:     h.store,
		Tracker:   h.tracker,
		Provider:  h.provider,
		Poller:    linking.NewPoller(h.store, h.opts.PollInterval),
		ReturnURL: h.opts.ReturnURL,
		OnLinked:  h.opts.OnLinked,
		Notifier:  h.opts.Notifier,
		Messages:  h.opts.Messages,
	})

	h.mu.Lock()
	if prev, ok := h.flows[c.ID]; ok {
		prev.Close()
	}
	h.flows[c.ID] = flow
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, flow.Status())
}

// HandleConsent records the consent acknowledgment and, when agreed,
// advances the flow to institution selection.
func (h *LinkingHandler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flow, ok := h.flowFor(req.CustomerID)
	if !ok {
		http.Error(w, "No active flow for customer", http.StatusNotFound)
		return
	}

	flow.AcknowledgeConsent(req.Agreed)
	if err := flow.Continue(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow.Status())
}

// HandleInstitutions returns the catalog for the customer's environment
// partition.
func (h *LinkingHandler) HandleInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		http.Error(w, "customerId is required", http.StatusBadRequest)
		return
	}

	c, err := h.store.GetByID(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, customer.ErrCustomerNotFound)
		return
	}

	writeJSON(w, http.StatusOK, linking.InstitutionsFor(c.TestMode))
}

// HandleSelect submits an institution and moves the flow to the waiting step.
func (h *LinkingHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flow, ok := h.flowFor(req.CustomerID)
	if !ok {
		http.Error(w, "No active flow for customer", http.StatusNotFound)
		return
	}

	if err := flow.SelectInstitution(r.Context(), req.InstitutionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow.Status())
}

// HandleAbandon cancels the wait and returns the flow to selection.
func (h *LinkingHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flow, ok := h.flowFor(req.CustomerID)
	if !ok {
		http.Error(w, "No active flow for customer", http.StatusNotFound)
		return
	}

	if err := flow.Abandon(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow.Status())
}

// HandleStatus returns the flow snapshot the UI polls while waiting.
func (h *LinkingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	customerID := r.URL.Query().Get("customerId")
	flow, ok := h.flowFor(customerID)
	if !ok {
		http.Error(w, "No active flow for customer", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, flow.Status())
}

func (h *LinkingHandler) flowFor(customerID string) (*linking.Flow, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	flow, ok := h.flows[customerID]
	return flow, ok
}

var redirectTemplate = template.Must(template.ParseFS(web.FS, "redirect.html"))

type redirectPage struct {
	Message   string
	AutoClose bool
}

// HandleRedirect is the return target of the provider's hosted authorization
// page, opened in its own browser window. It marks the session completed in
// the shared store; the poller in the original window observes the change.
// The page closes itself only after a successful update.
func (h *LinkingHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stateID := r.URL.Query().Get("stateId")
	if stateID == "" {
		h.renderRedirect(w, redirectPage{Message: "State Id Not Found"})
		return
	}

	owner, err := h.store.FindSessionByStateID(r.Context(), stateID)
	if err != nil {
		log.Printf("Error looking up state %s: %v", stateID, err)
		h.renderRedirect(w, redirectPage{Message: "Update State Failed"})
		return
	}
	if owner == nil {
		h.renderRedirect(w, redirectPage{Message: "Customer Id Not Found"})
		return
	}

	completed := customer.StatusCompleted
	err = h.store.UpdateSession(r.Context(), owner.CustomerID, stateID, customer.SessionUpdate{
		Status: &completed,
	})
	if err != nil {
		log.Printf("Error completing state %s: %v", stateID, err)
		h.renderRedirect(w, redirectPage{Message: "Update State Failed"})
		return
	}

	h.renderRedirect(w, redirectPage{Message: "Bank connection complete. You can close this window.", AutoClose: true})
}

func (h *LinkingHandler) renderRedirect(w http.ResponseWriter, page redirectPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := redirectTemplate.Execute(w, page); err != nil {
		log.Printf("Error rendering redirect page: %v", err)
	}
}
