package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jbmild/cocos/internal/apperr"
	"github.com/jbmild/cocos/internal/model"
	"github.com/jbmild/cocos/internal/order"
)

// HandleCreateOrder handles POST /api/v1/orders.
// Responds 201 for every persisted order, including REJECTED ones: a
// rejection is a normal outcome, not an error.
func (s *Service) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in order.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := s.CreateOrder(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// HandleCancelOrder handles POST /api/v1/orders/{orderID}/cancel.
func (s *Service) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := s.CancelOrder(r.Context(), orderID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HandleGetOrder handles GET /api/v1/orders/{orderID}.
func (s *Service) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := s.store.GetOrder(r.Context(), orderID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HandleGetPortfolio handles GET /api/v1/portfolio/{userID}.
func (s *Service) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, "user ID must be a positive integer", http.StatusBadRequest)
		return
	}

	pf, err := s.Portfolio(r.Context(), userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pf)
}

// HandleSearchInstruments handles GET /api/v1/instruments/search?q=&limit=&offset=.
func (s *Service) HandleSearchInstruments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		offset = n
	}

	instruments, err := s.store.SearchInstruments(r.Context(), q, limit, offset)
	if err != nil {
		writeError(w, "failed to search instruments", http.StatusInternalServerError)
		return
	}
	if instruments == nil {
		instruments = []model.Instrument{}
	}
	writeJSON(w, http.StatusOK, instruments)
}

// writeAppError maps the error taxonomy onto HTTP statuses. Inconsistent
// state is an operator alarm: it is logged at error level and answered as
// a server-side failure, never as caller error.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apperr.ErrInconsistentState):
		slog.Error("inconsistent portfolio state", "err", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		slog.Error("internal error", "err", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
