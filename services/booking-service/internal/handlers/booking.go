package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/availability"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/booking"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/hours"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/storage"
)

const conflictMessage = "that time was just taken, please pick another"

// Store is the persistence the handler needs.
type Store interface {
	ListReservationsForDay(ctx context.Context, date civil.Date) ([]storage.Row, error)
	Book(ctx context.Context, p storage.BookParams, commit storage.CommitFunc) (storage.BookOutcome, error)
	Transition(ctx context.Context, id string, to model.ReservationStatus, reason string) (storage.Row, error)
}

type BookingHandler struct {
	store     Store
	hours     *hours.Policy
	calc      *pricing.Calculator
	committer *booking.Committer
	step      time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewBookingHandler(store Store, policy *hours.Policy, calc *pricing.Calculator, step time.Duration, logger *slog.Logger) *BookingHandler {
	if step <= 0 {
		step = availability.DefaultStep
	}
	return &BookingHandler{
		store:     store,
		hours:     policy,
		calc:      calc,
		committer: booking.NewCommitter(),
		step:      step,
		logger:    logger,
		now:       time.Now,
	}
}

// sessionSpec is how clients describe the session they want, in both query
// strings and JSON bodies.
type sessionSpec struct {
	Kind            string   `json:"kind"`
	PackageKey      string   `json:"package_key"`
	DurationMinutes int      `json:"duration_minutes"`
	PeopleCount     int      `json:"people_count"`
	PortraitType    string   `json:"portrait_type"`
	AddOnIDs        []string `json:"add_on_ids"`
}

type intervalItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type lineItem struct {
	Label       string `json:"label"`
	AmountMinor int64  `json:"amount_minor"`
}

type quoteResponse struct {
	Kind            string     `json:"kind"`
	PackageKey      string     `json:"package_key,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Currency        string     `json:"currency"`
	Lines           []lineItem `json:"lines"`
	TotalMinor      int64      `json:"total_minor"`
}

type bookRequest struct {
	sessionSpec
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type bookResponse struct {
	ReservationID   string `json:"reservation_id"`
	LeadID          string `json:"lead_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	TotalMinor      int64  `json:"total_minor"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
}

type cancelRequest struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

type cancelResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type reservationItem struct {
	ReservationID   string   `json:"reservation_id"`
	LeadID          string   `json:"lead_id"`
	PackageKind     string   `json:"package_kind"`
	PackageKey      string   `json:"package_key,omitempty"`
	AddOnIDs        []string `json:"add_on_ids"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	DurationMinutes int      `json:"duration_minutes"`
	TotalMinor      int64    `json:"total_minor"`
	Status          string   `json:"status"`
	CancelledAt     string   `json:"cancelled_at,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

type packageItem struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceMinor      int64  `json:"price_minor"`
	Description     string `json:"description"`
}

type addOnItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

type catalogResponse struct {
	Currency            string        `json:"currency"`
	ConsultationMinutes int           `json:"consultation_minutes"`
	Packages            []packageItem `json:"packages"`
	AddOns              []addOnItem   `json:"add_ons"`
	Custom              customItem    `json:"custom"`
}

type customItem struct {
	HourlyRateMinor              int64 `json:"hourly_rate_minor"`
	MinimumTotalMinor            int64 `json:"minimum_total_minor"`
	FamilySurchargeThreshold     int   `json:"family_surcharge_threshold_people"`
	FamilySurchargePerExtraMinor int64 `json:"family_surcharge_per_extra_person_minor"`
}

func (h *BookingHandler) Windows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	windows := h.hours.WindowsFor(date)
	resp := make([]intervalItem, 0, len(windows))
	for _, win := range windows {
		resp = append(resp, h.interval(win.Start, win.End))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	spec := sessionSpec{
		Kind:         strings.TrimSpace(q.Get("kind")),
		PackageKey:   strings.TrimSpace(q.Get("package")),
		PortraitType: strings.TrimSpace(q.Get("portrait_type")),
	}
	if spec.Kind == "" && spec.PackageKey != "" {
		spec.Kind = string(pricing.KindPackage)
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		spec.DurationMinutes = n
	}
	// Party size and portrait type do not change the session length.
	spec.PeopleCount = 1
	if spec.PortraitType == "" {
		spec.PortraitType = string(pricing.PortraitIndividual)
	}

	req, err := h.sessionRequest(spec)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	rows, err := h.store.ListReservationsForDay(r.Context(), date)
	if err != nil {
		h.logger.Error("list reservations failed", "err", err, "date", date.String())
		http.Error(w, "failed to load reservations", http.StatusInternalServerError)
		return
	}

	free := availability.NotBefore(
		availability.Filter(h.candidates(date, req), reservationsOf(rows)),
		h.now(),
	)
	resp := make([]intervalItem, 0, len(free))
	for _, s := range free {
		resp = append(resp, h.interval(s.Start, s.End))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var spec sessionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	quote, err := h.quote(spec)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := quoteResponse{
		Kind:            string(quote.Request.Kind.Kind),
		PackageKey:      quote.Request.Kind.Key,
		DurationMinutes: quote.Request.DurationMinutes,
		Currency:        h.calc.Currency(),
		Lines:           make([]lineItem, 0, len(quote.Lines)),
		TotalMinor:      quote.TotalMinorUnits,
	}
	for _, l := range quote.Lines {
		resp.Lines = append(resp.Lines, lineItem{Label: l.Label, AmountMinor: l.AmountMinorUnits})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.CustomerName == "" || !strings.Contains(req.CustomerEmail, "@") {
		http.Error(w, "customer_name and a valid customer_email are required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	quote, err := h.quote(req.sessionSpec)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	slot := model.Slot{Start: start, End: start.Add(time.Duration(quote.Request.DurationMinutes) * time.Minute)}
	if slot.Start.Before(h.now()) {
		http.Error(w, "start_time is in the past", http.StatusUnprocessableEntity)
		return
	}
	date := h.hours.DateOf(start)
	if !availability.Contains(h.candidates(date, quote.Request), slot) {
		http.Error(w, "requested time is outside studio hours", http.StatusUnprocessableEntity)
		return
	}

	outcome, err := h.store.Book(r.Context(), storage.BookParams{
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Lead: storage.Lead{
			Email: req.CustomerEmail,
			Name:  req.CustomerName,
			Phone: req.CustomerPhone,
		},
		Slot: slot,
	}, func(snapshot booking.SnapshotFunc) (model.BookingRecord, error) {
		return h.committer.Commit(slot, quote, snapshot)
	})
	if err != nil {
		var ce *booking.ConflictError
		if errors.As(err, &ce) {
			h.logger.Info("booking conflict", "start_time", slot.Start.UTC().Format(time.RFC3339), "blocked_by", ce.ReservationID)
		}
		h.writeDomainError(w, err)
		return
	}

	if outcome.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	row := outcome.Row
	writeJSON(w, http.StatusCreated, bookResponse{
		ReservationID:   row.ID,
		LeadID:          row.LeadID,
		StartTime:       h.formatTime(row.Slot.Start),
		EndTime:         h.formatTime(row.Slot.End),
		DurationMinutes: row.DurationMinutes,
		TotalMinor:      row.TotalPriceMinorUnits,
		Currency:        h.calc.Currency(),
		Status:          string(row.Status),
	})
}

func (h *BookingHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	custom := h.calc.Custom()
	resp := catalogResponse{
		Currency:            h.calc.Currency(),
		ConsultationMinutes: pricing.ConsultationMinutes,
		Custom: customItem{
			HourlyRateMinor:              custom.HourlyRateMinorUnits,
			MinimumTotalMinor:            custom.MinimumTotalMinorUnits,
			FamilySurchargeThreshold:     custom.FamilySurchargeThresholdPeople,
			FamilySurchargePerExtraMinor: custom.FamilySurchargePerExtraPersonMinorUnits,
		},
	}
	for _, p := range h.calc.Packages() {
		resp.Packages = append(resp.Packages, packageItem{Key: p.Key, Name: p.Name, DurationMinutes: p.DurationMinutes, PriceMinor: p.PriceMinorUnits, Description: p.Description})
	}
	for _, a := range h.calc.AddOns() {
		resp.AddOns = append(resp.AddOns, addOnItem{ID: a.ID, Name: a.Name, PriceMinor: a.PriceMinorUnits})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ReservationID = strings.TrimSpace(req.ReservationID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ReservationID == "" {
		http.Error(w, "reservation_id required", http.StatusBadRequest)
		return
	}

	row, err := h.store.Transition(r.Context(), req.ReservationID, model.StatusCancelled, req.Reason)
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			http.Error(w, "reservation not found", http.StatusNotFound)
		case storage.IsInvalidTransition(err):
			http.Error(w, "reservation cannot be cancelled", http.StatusConflict)
		default:
			h.logger.Error("cancel reservation failed", "err", err, "reservation_id", req.ReservationID)
			http.Error(w, "failed to cancel reservation", http.StatusInternalServerError)
		}
		return
	}

	resp := cancelResponse{ReservationID: row.ID, Status: string(row.Status)}
	if row.CancelledAt != nil {
		resp.CancelledAt = row.CancelledAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, ok := parseDateParam(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListReservationsForDay(r.Context(), date)
	if err != nil {
		h.logger.Error("list reservations failed", "err", err, "date", date.String())
		http.Error(w, "failed to list reservations", http.StatusInternalServerError)
		return
	}

	items := make([]reservationItem, 0, len(rows))
	for _, row := range rows {
		item := reservationItem{
			ReservationID:   row.ID,
			LeadID:          row.LeadID,
			PackageKind:     string(row.Package.Kind),
			PackageKey:      row.Package.Key,
			AddOnIDs:        row.AddOnIDs,
			StartTime:       h.formatTime(row.Slot.Start),
			EndTime:         h.formatTime(row.Slot.End),
			DurationMinutes: row.DurationMinutes,
			TotalMinor:      row.TotalPriceMinorUnits,
			Status:          string(row.Status),
			CreatedAt:       row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if item.AddOnIDs == nil {
			item.AddOnIDs = []string{}
		}
		if row.CancelledAt != nil {
			item.CancelledAt = row.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) candidates(date civil.Date, req pricing.SessionRequest) []model.Slot {
	return availability.Generate(h.hours.WindowsFor(date), time.Duration(req.DurationMinutes)*time.Minute, h.step)
}

func (h *BookingHandler) sessionRequest(spec sessionSpec) (pricing.SessionRequest, error) {
	kind, err := packageKind(spec)
	if err != nil {
		return pricing.SessionRequest{}, err
	}
	return h.calc.Request(kind, spec.DurationMinutes)
}

func (h *BookingHandler) quote(spec sessionSpec) (pricing.Quote, error) {
	req, err := h.sessionRequest(spec)
	if err != nil {
		return pricing.Quote{}, err
	}
	addOns, err := h.calc.ResolveAddOns(spec.AddOnIDs)
	if err != nil {
		return pricing.Quote{}, err
	}
	return h.calc.Quote(req, addOns)
}

func packageKind(spec sessionSpec) (pricing.PackageKind, error) {
	switch pricing.Kind(strings.ToLower(strings.TrimSpace(spec.Kind))) {
	case pricing.KindConsultation:
		return pricing.Consultation(), nil
	case pricing.KindPackage:
		key := strings.TrimSpace(spec.PackageKey)
		if key == "" {
			return pricing.PackageKind{}, fmt.Errorf("%w: package_key required", pricing.ErrInvalidRequest)
		}
		return pricing.FixedPackage(key), nil
	case pricing.KindCustom:
		portrait, err := pricing.ParsePortraitType(spec.PortraitType)
		if err != nil {
			return pricing.PackageKind{}, err
		}
		return pricing.Custom(spec.PeopleCount, portrait), nil
	default:
		return pricing.PackageKind{}, fmt.Errorf("%w: kind must be consultation, package or custom", pricing.ErrInvalidRequest)
	}
}

// writeDomainError maps core errors to status codes.
func (h *BookingHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrConflict):
		http.Error(w, conflictMessage, http.StatusConflict)
	case errors.Is(err, pricing.ErrUnknownPackageKey), errors.Is(err, pricing.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *BookingHandler) interval(start, end time.Time) intervalItem {
	return intervalItem{StartTime: h.formatTime(start), EndTime: h.formatTime(end)}
}

// formatTime renders t in the studio's zone so clients see local wall time.
func (h *BookingHandler) formatTime(t time.Time) string {
	return t.In(h.hours.Location()).Format(time.RFC3339)
}

func reservationsOf(rows []storage.Row) []model.Reservation {
	out := make([]model.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Reservation())
	}
	return out
}

func parseDateParam(w http.ResponseWriter, r *http.Request) (civil.Date, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		http.Error(w, "date required", http.StatusBadRequest)
		return civil.Date{}, false
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return civil.Date{}, false
	}
	return date, true
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
