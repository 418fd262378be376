package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/topup/upsell/internal/models"
	"github.com/topup/upsell/internal/services"
)

// maxCheckoutDataBytes caps the buyer details body
const maxCheckoutDataBytes = 2 << 10

// SessionDataHandler serves the storage handoff used by the sibling pages
type SessionDataHandler struct {
	service services.SessionDataService
	repo    services.SessionRepository
	logger  *zap.Logger
}

// NewSessionDataHandler creates a new session data handler
func NewSessionDataHandler(service services.SessionDataService, repo services.SessionRepository, logger *zap.Logger) *SessionDataHandler {
	return &SessionDataHandler{
		service: service,
		repo:    repo,
		logger:  logger,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Fields  []services.FieldError `json:"fields,omitempty"`
}

// SaveCheckoutData handles PUT /api/session/checkoutData
func (h *SessionDataHandler) SaveCheckoutData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := SessionID(r.Context())
	if sessionID == "" {
		sendErrorResponse(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCheckoutDataBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendErrorResponse(w, "Checkout data is too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var buyer models.BuyerContext
	if err := json.Unmarshal(raw, &buyer); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			sendErrorResponse(w, "Checkout field "+typeErr.Field+" must be a string", http.StatusBadRequest)
			return
		}
		sendErrorResponse(w, "Checkout data must be a JSON object", http.StatusBadRequest)
		return
	}

	storage := services.NewScopedStorage(h.repo, sessionID)
	if err := h.service.SaveCheckoutData(r.Context(), storage, buyer); err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   http.StatusText(http.StatusUnprocessableEntity),
				Message: "Checkout data is invalid",
				Fields:  ve.Fields,
			})
			return
		}
		h.logger.Error("failed to store checkout data", zap.Error(err))
		sendErrorResponse(w, "Failed to store checkout data", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PaymentSession handles GET /api/session/pixCheckout
func (h *SessionDataHandler) PaymentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := SessionID(r.Context())
	if sessionID == "" {
		sendErrorResponse(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	record, err := h.service.PaymentSession(r.Context(), services.NewScopedStorage(h.repo, sessionID))
	switch {
	case errors.Is(err, services.ErrNoPaymentSession):
		sendErrorResponse(w, "No payment session for this browser session", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("failed to load payment session", zap.Error(err))
		sendErrorResponse(w, "Failed to load payment session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		h.logger.Warn("error encoding response", zap.Error(err))
	}
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// sendErrorResponse sends a JSON error response
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
