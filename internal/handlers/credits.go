package handlers

import (
	"net/http"
	"strings"
)

type balanceResponse struct {
	UserID      string `json:"user_id"`
	ServiceType string `json:"service_type"`
	Balance     int    `json:"balance"`
}

// CreditBalance returns the live credit balance. A user with no ledger rows
// has balance zero, not an error.
func (h *Handler) CreditBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	serviceType := strings.TrimSpace(r.URL.Query().Get("service_type"))
	if userID == "" || serviceType == "" {
		http.Error(w, "missing user_id or service_type", http.StatusBadRequest)
		return
	}

	balance, err := h.credits.Balance(r.Context(), userID, serviceType)
	if err != nil {
		h.logger.Error("balance lookup failed", "err", err)
		http.Error(w, "balance unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		UserID:      userID,
		ServiceType: serviceType,
		Balance:     balance,
	})
}
