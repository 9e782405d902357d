package http

import (
	"encoding/json"
	"log"
	"net/http"

	"fclink/internal/domain/customer"
	"fclink/internal/infrastructure/provider"
)

type CustomerHandler struct {
	store    customer.Store
	provider provider.ClientInterface
}

func NewCustomerHandler(store customer.Store, client provider.ClientInterface) *CustomerHandler {
	return &CustomerHandler{store: store, provider: client}
}

type CreateCustomerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TestMode bool   `json:"testmode"`
}

// HandleCustomers handles the customer collection: listing (optionally
// filtered by email through the provider) and creation.
func (h *CustomerHandler) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if email := r.URL.Query().Get("email"); email != "" {
			h.handleLookupByEmail(w, r, email)
			return
		}
		h.handleList(w, r)
	case http.MethodPost:
		h.handleCreate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CustomerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*customer.Customer, 0, len(all))
	for _, c := range all {
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CustomerHandler) handleLookupByEmail(w http.ResponseWriter, r *http.Request, email string) {
	env := envFromQuery(r)
	found, err := h.provider.ListCustomersByEmail(r.Context(), env, email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *CustomerHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}

	created, err := h.provider.CreateCustomer(r.Context(), provider.EnvFor(req.TestMode), req.Name, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	c := &customer.Customer{
		ID:       created.ID,
		Email:    created.Email,
		Name:     created.Name,
		TestMode: req.TestMode,
		Sessions: make(map[string]*customer.Session),
	}
	if err := h.store.Save(r.Context(), c); err != nil {
		// The provider record exists either way; surface the local copy.
		log.Printf("Error saving customer %s: %v", c.ID, err)
	}

	writeJSON(w, http.StatusCreated, c)
}

// HandleCustomerByID handles GET and PATCH on a single customer record.
func (h *CustomerHandler) HandleCustomerByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Customer ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, id)
	case http.MethodPatch:
		h.handleUpdate(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CustomerHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, customer.ErrCustomerNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var upd customer.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.Update(r.Context(), id, upd); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type CreatePaymentMethodRequest struct {
	AccountID string `json:"accountId"`
}

// HandlePaymentMethods lists a customer's bank-account payment methods from
// the provider, and creates one from a linked account on POST.
func (h *CustomerHandler) HandlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Customer ID required", http.StatusBadRequest)
		return
	}

	c, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeError(w, customer.ErrCustomerNotFound)
		return
	}
	env := provider.EnvFor(c.TestMode)

	switch r.Method {
	case http.MethodGet:
		methods, err := h.provider.ListPaymentMethods(r.Context(), env, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, methods)
	case http.MethodPost:
		var req CreatePaymentMethodRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.AccountID == "" {
			http.Error(w, "accountId is required", http.StatusBadRequest)
			return
		}
		method, err := h.provider.CreateAndAttachPaymentMethod(r.Context(), env, req.AccountID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, method)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type SetActiveCustomerRequest struct {
	CustomerID string `json:"customerId"`
}

// HandleActiveCustomer manages the active-customer pointer: the single
// customer the demo UI is currently operating on.
func (h *CustomerHandler) HandleActiveCustomer(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id, err := h.store.GetActiveCustomerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if id == "" {
			writeJSON(w, http.StatusOK, map[string]any{"customerId": nil})
			return
		}
		writeJSON(w, http.StatusOK, SetActiveCustomerRequest{CustomerID: id})
	case http.MethodPut:
		var req SetActiveCustomerRequest
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
		if err := h.store.SetActiveCustomerID(r.Context(), req.CustomerID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SetActiveCustomerRequest{CustomerID: req.CustomerID})
	case http.MethodDelete:
		if err := h.store.ClearActiveCustomerID(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// envFromQuery reads the testmode query parameter; absent means test mode,
// matching the demo default.
func envFromQuery(r *http.Request) provider.Env {
	testMode := r.URL.Query().Get("testmode") != "false"
	return provider.EnvFor(testMode)
}
