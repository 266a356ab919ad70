package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/hours"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/model"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/pricing"
	"github.com/shuttercraft/studiobook/services/booking-service/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    []storage.Row
	nextID  int
	listErr error
}

func (f *fakeStore) ListReservationsForDay(_ context.Context, date civil.Date) ([]storage.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.Row
	for _, r := range f.rows {
		if civil.DateOf(r.Slot.Start) == date {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Book(_ context.Context, p storage.BookParams, commit storage.CommitFunc) (storage.BookOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := commit(func() ([]model.Reservation, error) {
		out := make([]model.Reservation, 0, len(f.rows))
		for _, r := range f.rows {
			out = append(out, r.Reservation())
		}
		return out, nil
	})
	if err != nil {
		return storage.BookOutcome{}, err
	}
	f.nextID++
	rec.ID = fmt.Sprintf("res-%d", f.nextID)
	rec.LeadID = "lead-" + p.Lead.Email
	row := storage.Row{BookingRecord: rec, Status: model.StatusScheduled, CreatedAt: time.Now()}
	f.rows = append(f.rows, row)
	return storage.BookOutcome{Row: row}, nil
}

func (f *fakeStore) Transition(_ context.Context, id string, to model.ReservationStatus, reason string) (storage.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID != id {
			continue
		}
		if !model.CanTransition(f.rows[i].Status, to) {
			return f.rows[i], fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, f.rows[i].Status, to)
		}
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		f.rows[i].Status = to
		f.rows[i].CancelledAt = &now
		f.rows[i].CancelReason = reason
		return f.rows[i], nil
	}
	return storage.Row{}, storage.ErrNotFound
}

func at(day, h, m int) time.Time {
	return time.Date(2025, 3, day, h, m, 0, 0, time.UTC)
}

func scheduled(id string, start, end time.Time) storage.Row {
	var r storage.Row
	r.ID = id
	r.Slot = model.Slot{Start: start, End: end}
	r.Status = model.StatusScheduled
	return r
}

func newTestHandler(t *testing.T, store *fakeStore, now time.Time) *BookingHandler {
	t.Helper()
	calc, err := pricing.DefaultCalculator(pricing.DefaultCustomPolicy)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	h := NewBookingHandler(store, hours.DefaultPolicy(time.UTC), calc, 15*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return now }
	return h
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func postJSON(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWindows(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, at(10, 0, 0))
	rec := httptest.NewRecorder()
	h.Windows(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-03-11", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[[]intervalItem](t, rec)
	if len(got) != 2 || got[0].StartTime != "2025-03-11T06:00:00Z" || got[1].EndTime != "2025-03-11T21:00:00Z" {
		t.Fatalf("unexpected windows %+v", got)
	}

	rec = httptest.NewRecorder()
	h.Windows(rec, httptest.NewRequest(http.MethodGet, "/?date=11-03-2025", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestSlotsExcludesBookedAndPast(t *testing.T) {
	store := &fakeStore{rows: []storage.Row{
		scheduled("r1", at(11, 6, 30), at(11, 7, 30)),
		{BookingRecord: model.BookingRecord{ID: "r2", Slot: model.Slot{Start: at(11, 18, 0), End: at(11, 19, 0)}}, Status: model.StatusCancelled},
	}}
	h := newTestHandler(t, store, at(10, 0, 0))

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-03-11&package=classic", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[[]intervalItem](t, rec)
	// Every morning slot touches 06:30-07:30; the evening has 17:30..20:00.
	if len(got) != 11 || got[0].StartTime != "2025-03-11T17:30:00Z" || got[10].StartTime != "2025-03-11T20:00:00Z" {
		t.Fatalf("unexpected slots %+v", got)
	}

	h.now = func() time.Time { return at(11, 18, 0) }
	rec = httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-03-11&package=classic", nil))
	if got := decode[[]intervalItem](t, rec); len(got) != 9 {
		t.Fatalf("expected 9 slots after 18:00, got %d", len(got))
	}
}

func TestSlotsValidation(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, at(10, 0, 0))
	cases := map[string]int{
		"/?date=2025-03-11&package=platinum":                              http.StatusUnprocessableEntity,
		"/?date=2025-03-11":                                               http.StatusUnprocessableEntity,
		"/?date=2025-03-11&kind=custom&duration_minutes=abc":              http.StatusBadRequest,
		"/?date=2025-03-11&kind=custom&duration_minutes=0":                http.StatusUnprocessableEntity,
		"/?date=2025-03-11&kind=custom&duration_minutes=90":               http.StatusOK,
		"/?date=2025-03-11&kind=custom&duration_minutes=1441":             http.StatusUnprocessableEntity,
		"/?date=2025-03-11&kind=custom&duration_minutes=200000000":        http.StatusUnprocessableEntity,
		"/?date=2025-03-11&kind=custom&duration_minutes=9007199254741052": http.StatusUnprocessableEntity,
		"/?date=2025-03-11&kind=consultation":                             http.StatusOK,
		"/?package=classic":                                               http.StatusBadRequest,
	}
	for target, want := range cases {
		rec := httptest.NewRecorder()
		h.Slots(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != want {
			t.Fatalf("%s: expected %d, got %d (%s)", target, want, rec.Code, rec.Body.String())
		}
	}
}

func TestQuote(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, at(10, 0, 0))

	rec := postJSON(h.Quote, `{"kind":"custom","duration_minutes":90,"people_count":7,"portrait_type":"family"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	q := decode[quoteResponse](t, rec)
	if q.TotalMinor != 40000 || len(q.Lines) != 2 || q.Currency != "USD" {
		t.Fatalf("unexpected quote %+v", q)
	}

	rec = postJSON(h.Quote, `{"kind":"consultation","add_on_ids":["print-set"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for consultation add-on, got %d", rec.Code)
	}

	rec = postJSON(h.Quote, `{"kind":"package","package_key":"platinum"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown package, got %d", rec.Code)
	}

	rec = postJSON(h.Quote, `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func bookBody(start string) string {
	return fmt.Sprintf(`{"kind":"package","package_key":"classic","add_on_ids":["rush-edit"],"start_time":%q,"customer_name":"Dana","customer_email":"dana@example.com"}`, start)
}

func TestBook(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(t, store, at(10, 0, 0))

	rec := postJSON(h.Book, bookBody("2025-03-11T17:30:00Z"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[bookResponse](t, rec)
	if resp.ReservationID != "res-1" || resp.TotalMinor != 37500 || resp.EndTime != "2025-03-11T18:30:00Z" || resp.Status != "scheduled" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(store.rows) != 1 || store.rows[0].AddOnIDs[0] != "rush-edit" {
		t.Fatalf("unexpected stored rows %+v", store.rows)
	}

	rec = postJSON(h.Book, bookBody("2025-03-11T18:00:00Z"))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), conflictMessage) {
		t.Fatalf("expected 409 with conflict message, got %d: %s", rec.Code, rec.Body.String())
	}

	// Back to back is fine.
	rec = postJSON(h.Book, bookBody("2025-03-11T18:30:00Z"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected adjacent booking to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBookRejections(t *testing.T) {
	h := newTestHandler(t, &fakeStore{}, at(10, 0, 0))
	cases := []struct {
		name string
		body string
		want int
	}{
		{"outside hours", bookBody("2025-03-11T12:00:00Z"), http.StatusUnprocessableEntity},
		{"off step", bookBody("2025-03-11T17:40:00Z"), http.StatusUnprocessableEntity},
		{"runs past window", bookBody("2025-03-11T07:15:00Z"), http.StatusUnprocessableEntity},
		{"in the past", bookBody("2025-03-08T09:00:00Z"), http.StatusUnprocessableEntity},
		{"bad start", bookBody("tomorrow"), http.StatusBadRequest},
		{"missing email", `{"kind":"consultation","start_time":"2025-03-11T17:30:00Z","customer_name":"Dana"}`, http.StatusBadRequest},
		{"consultation add-on", `{"kind":"consultation","add_on_ids":["print-set"],"start_time":"2025-03-11T17:30:00Z","customer_name":"Dana","customer_email":"d@example.com"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rec := postJSON(h.Book, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestBookConcurrentSameSlot(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(t, store, at(10, 0, 0))

	const clients = 8
	codes := make(chan int, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(bookBody("2025-03-15T10:00:00Z")))
			rec := httptest.NewRecorder()
			h.Book(rec, req)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	if counts[http.StatusCreated] != 1 || counts[http.StatusConflict] != clients-1 {
		t.Fatalf("expected one winner and %d conflicts, got %v", clients-1, counts)
	}
}

func TestCancel(t *testing.T) {
	store := &fakeStore{rows: []storage.Row{scheduled("r1", at(11, 17, 30), at(11, 18, 30))}}
	h := newTestHandler(t, store, at(10, 0, 0))

	rec := postJSON(h.Cancel, `{"reservation_id":"r1","reason":"sick"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[cancelResponse](t, rec); resp.Status != "cancelled" || resp.CancelledAt == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = postJSON(h.Cancel, `{"reservation_id":"r1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second cancel, got %d", rec.Code)
	}
	rec = postJSON(h.Cancel, `{"reservation_id":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = postJSON(h.Cancel, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// The freed slot is bookable again.
	rec = postJSON(h.Book, bookBody("2025-03-11T17:30:00Z"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected rebooking to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListAndCatalog(t *testing.T) {
	store := &fakeStore{rows: []storage.Row{scheduled("r1", at(11, 17, 30), at(11, 18, 30))}}
	h := newTestHandler(t, store, at(10, 0, 0))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-03-11", nil))
	items := decode[[]reservationItem](t, rec)
	if len(items) != 1 || items[0].ReservationID != "r1" || items[0].AddOnIDs == nil {
		t.Fatalf("unexpected list %+v", items)
	}

	store.listErr = fmt.Errorf("db down")
	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/?date=2025-03-11", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Catalog(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cat := decode[catalogResponse](t, rec)
	if len(cat.Packages) != 3 || len(cat.AddOns) != 4 || cat.ConsultationMinutes != 30 || cat.Custom.MinimumTotalMinor != 25000 {
		t.Fatalf("unexpected catalog %+v", cat)
	}

	rec = httptest.NewRecorder()
	h.Catalog(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
