package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotledger/internal/booking"
)

type placeHoldRequest struct {
	SlotStart   string `json:"slot_start"`
	SlotEnd     string `json:"slot_end"`
	HoldKey     string `json:"hold_key"`
	ExternalRef string `json:"external_ref"`
}

type placeHoldResponse struct {
	HoldKey   string `json:"hold_key"`
	SlotStart string `json:"slot_start"`
	SlotEnd   string `json:"slot_end"`
	ExpiresAt string `json:"expires_at"`
}

// PlaceHold claims a slot for the duration of checkout. Re-posting the same
// hold_key for the same slot refreshes the TTL.
func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req placeHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, req.SlotStart)
	if err != nil {
		http.Error(w, "invalid slot_start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.SlotEnd)
	if err != nil {
		http.Error(w, "invalid slot_end", http.StatusBadRequest)
		return
	}

	hold, err := h.holds.Place(r.Context(), booking.Slot{Start: start, End: end}, strings.TrimSpace(req.HoldKey), strings.TrimSpace(req.ExternalRef))
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "slot_conflict"})
		return
	case errors.Is(err, booking.ErrInvalidSlot):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("hold placement failed", "err", err)
		http.Error(w, "hold placement failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, placeHoldResponse{
		HoldKey:   hold.Key,
		SlotStart: hold.Slot.Start.UTC().Format(time.RFC3339),
		SlotEnd:   hold.Slot.End.UTC().Format(time.RFC3339),
		ExpiresAt: hold.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type attachHoldRequest struct {
	HoldKey     string `json:"hold_key"`
	ExternalRef string `json:"external_ref"`
}

// AttachHold tags a hold with the external transaction paying for it.
func (h *Handler) AttachHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req attachHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	err := h.holds.AttachRef(r.Context(), strings.TrimSpace(req.HoldKey), strings.TrimSpace(req.ExternalRef))
	switch {
	case errors.Is(err, booking.ErrHoldNotFound):
		http.Error(w, "hold not found", http.StatusNotFound)
		return
	case errors.Is(err, booking.ErrInvalidSlot):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("hold attach failed", "err", err)
		http.Error(w, "hold attach failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type releaseHoldRequest struct {
	HoldKey string `json:"hold_key"`
}

// ReleaseHold frees a hold early. Releasing an unknown or already-expired
// hold succeeds: the slot is free either way.
func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req releaseHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.HoldKey) == "" {
		http.Error(w, "missing hold_key", http.StatusBadRequest)
		return
	}

	if err := h.holds.Release(r.Context(), strings.TrimSpace(req.HoldKey)); err != nil {
		h.logger.Error("hold release failed", "err", err)
		http.Error(w, "hold release failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
