package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotledger/internal/catalog"
	"github.com/example/slotledger/internal/timewindow"
)

type slotItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type availabilityResponse struct {
	Service     string                `json:"service"`
	Addons      []string              `json:"addons,omitempty"`
	Days        map[string][]slotItem `json:"days"`
	EarliestDay string                `json:"earliest_day,omitempty"`
	LatestDay   string                `json:"latest_day,omitempty"`
}

// Availability lists open slots per business-local day. The range defaults
// to today through the advertised horizon.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	service := strings.TrimSpace(r.URL.Query().Get("service"))
	if service == "" {
		http.Error(w, "missing service", http.StatusBadRequest)
		return
	}
	addons := splitCSV(r.URL.Query().Get("addons"))

	today := timewindow.ToDayKey(h.clock.Now(), h.loc)
	from := today
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := timewindow.ParseDayKey(raw)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	fromStart, _ := timewindow.DayBounds(h.loc, from)
	to := timewindow.ToDayKey(fromStart.AddDate(0, 0, h.horizonDays-1), h.loc)
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := timewindow.ParseDayKey(raw)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	result, err := h.availability.Compute(r.Context(), service, addons, from, to)
	switch {
	case errors.Is(err, catalog.ErrUnknownService), errors.Is(err, catalog.ErrUnknownAddon):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, timewindow.ErrMalformedTime):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("availability computation failed", "err", err)
		http.Error(w, "availability unavailable", http.StatusInternalServerError)
		return
	}

	resp := availabilityResponse{
		Service:     service,
		Addons:      addons,
		Days:        make(map[string][]slotItem, len(result.Days)),
		EarliestDay: result.EarliestKey.String(),
		LatestDay:   result.LatestKey.String(),
	}
	for day, slots := range result.Days {
		items := make([]slotItem, 0, len(slots))
		for _, s := range slots {
			items = append(items, slotItem{
				Start: s.Start.UTC().Format(time.RFC3339),
				End:   s.End.UTC().Format(time.RFC3339),
			})
		}
		resp.Days[day.String()] = items
	}
	writeJSON(w, http.StatusOK, resp)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
