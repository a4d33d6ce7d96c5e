// Package http exposes the ledger's read-only query surface and the
// reconciliation operations to reporting and office tooling.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/service"

	"github.com/gorilla/mux"
)

// Handler bundles the ledger HTTP endpoints.
type Handler struct {
	ledger      service.LedgerService
	liabilities service.LiabilityService
}

func NewHandler(ledger service.LedgerService, liabilities service.LiabilityService) *Handler {
	return &Handler{ledger: ledger, liabilities: liabilities}
}

// Register wires the routes on the router.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts/{id}/balances", h.accountBalances).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/bookings", h.accountBookings).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/unbalanced-transactions", h.unbalancedTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", h.getTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}/reverse", h.reverseTransaction).Methods(http.MethodPost)
	api.HandleFunc("/members/{id}/balance", h.memberBalance).Methods(http.MethodGet)
	api.HandleFunc("/members/{id}/statute-barred-debt", h.statuteBarredDebt).Methods(http.MethodGet)
	api.HandleFunc("/members/{id}/update-liabilities", h.updateLiabilities).Methods(http.MethodPost)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyReversed),
		errors.Is(err, domain.ErrOverlappingBalance),
		errors.Is(err, domain.ErrAccountInUse):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBookingSides),
		errors.Is(err, domain.ErrNegativeAmount):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parseDate accepts "2006-01-02" or RFC 3339 query parameters.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) accountBalances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	start, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	var peer *int64
	if p := r.URL.Query().Get("peer_account"); p != "" {
		peerID, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			writeError(w, err)
			return
		}
		peer = &peerID
	}

	balances, err := h.ledger.AccountBalances(r.Context(), id, start, end, peer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) accountBookings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bookings, err := h.ledger.AccountBookings(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (h *Handler) unbalancedTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := h.ledger.UnbalancedTransactions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type reverseRequest struct {
	ValueDatetime *time.Time `json:"value_datetime,omitempty"`
	Memo          string     `json:"memo,omitempty"`
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reverseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, err)
			return
		}
	}
	reversal, err := h.ledger.ReverseTransaction(r.Context(), id, req.ValueDatetime, req.Memo, "api: reverse transaction")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reversal)
}

func (h *Handler) memberBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := h.liabilities.Balance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "balance": balance})
}

func (h *Handler) statuteBarredDebt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	futureLimit := 0
	if f := r.URL.Query().Get("future_limit_months"); f != "" {
		futureLimit, err = strconv.Atoi(f)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	barred, err := h.liabilities.StatuteBarredDebt(r.Context(), id, futureLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "statute_barred_debt": barred})
}

func (h *Handler) updateLiabilities(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.liabilities.UpdateLiabilities(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
