package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/services/analytics-service/internal/metrics"
)

const maxRangeDays = 366

type Store interface {
	Daily(ctx context.Context, from, to civil.Date) ([]metrics.Daily, error)
}

type DailyHandler struct {
	store  Store
	logger *slog.Logger
}

func NewDailyHandler(store Store, logger *slog.Logger) *DailyHandler {
	return &DailyHandler{store: store, logger: logger}
}

type dailyItem struct {
	Day                   string `json:"day"`
	BookedCount           int    `json:"booked_count"`
	CancelledCount        int    `json:"cancelled_count"`
	BookedRevenueMinor    int64  `json:"booked_revenue_minor"`
	CancelledRevenueMinor int64  `json:"cancelled_revenue_minor"`
	NetRevenueMinor       int64  `json:"net_revenue_minor"`
}

type dailyResponse struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Days   []dailyItem `json:"days"`
	Totals dailyItem   `json:"totals"`
}

// Daily serves GET /api/v1/analytics/daily?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *DailyHandler) Daily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	from, ok := parseDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDate(w, r, "to")
	if !ok {
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}
	if to.DaysSince(from) >= maxRangeDays {
		http.Error(w, "range too large", http.StatusBadRequest)
		return
	}

	days, err := h.store.Daily(r.Context(), from, to)
	if err != nil {
		h.logger.Error("daily metrics query failed", "err", err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}

	resp := dailyResponse{From: from.String(), To: to.String(), Days: make([]dailyItem, 0, len(days))}
	for _, d := range days {
		item := dailyItem{
			Day:                   d.Day.String(),
			BookedCount:           d.BookedCount,
			CancelledCount:        d.CancelledCount,
			BookedRevenueMinor:    d.BookedRevenueMinor,
			CancelledRevenueMinor: d.CancelledRevenueMinor,
			NetRevenueMinor:       d.NetRevenueMinor(),
		}
		resp.Days = append(resp.Days, item)
		resp.Totals.BookedCount += item.BookedCount
		resp.Totals.CancelledCount += item.CancelledCount
		resp.Totals.BookedRevenueMinor += item.BookedRevenueMinor
		resp.Totals.CancelledRevenueMinor += item.CancelledRevenueMinor
		resp.Totals.NetRevenueMinor += item.NetRevenueMinor
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseDate(w http.ResponseWriter, r *http.Request, key string) (civil.Date, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		http.Error(w, key+" required", http.StatusBadRequest)
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		http.Error(w, "invalid "+key+" (want YYYY-MM-DD)", http.StatusBadRequest)
		return civil.Date{}, false
	}
	return d, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
