package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"fclink/internal/domain/customer"
	"fclink/internal/domain/linking"
	"fclink/internal/infrastructure/provider"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Provider failures come
// back as 502 with the provider's own message so the UI can show it.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *linking.ValidationError
		providerErr   *provider.Error
	)

	switch {
	case errors.Is(err, customer.ErrCustomerNotFound),
		errors.Is(err, customer.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, customer.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, linking.ErrConsentRequired),
		errors.Is(err, linking.ErrInvalidStep):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &providerErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: providerErr.Message})
	default:
		log.Printf("Internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}
