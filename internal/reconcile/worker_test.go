package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/audit"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/observability"
)

type memStore struct {
	events       map[uuid.UUID]*domain.Event
	reservations []domain.Reservation
	activeSum    map[uuid.UUID]int
	admittable   map[uuid.UUID]int
	outbox       []string
}

func newMemStore() *memStore {
	return &memStore{
		events:     map[uuid.UUID]*domain.Event{},
		activeSum:  map[uuid.UUID]int{},
		admittable: map[uuid.UUID]int{},
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.Status == domain.ReservationActive && r.Lapsed(now) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListSellableEvents(_ context.Context) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Sellable() {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (m *memStore) GetEvent(_ context.Context, id uuid.UUID) (domain.Event, error) {
	ev, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return *ev, nil
}

func (m *memStore) SumActiveReservations(_ context.Context, eventID uuid.UUID, _ time.Time) (int, error) {
	return m.activeSum[eventID], nil
}

func (m *memStore) CountAdmittableTickets(_ context.Context, eventID uuid.UUID) (int, error) {
	return m.admittable[eventID], nil
}

func (m *memStore) SetIssuedCount(_ context.Context, eventID uuid.UUID, count int) error {
	m.events[eventID].IssuedCount = count
	return nil
}

func (m *memStore) EnqueueEvent(_ context.Context, _ string, _ uuid.UUID, eventType string, _ any) error {
	m.outbox = append(m.outbox, eventType)
	return nil
}

type recordingExpirer struct {
	expired []uuid.UUID
}

func (r *recordingExpirer) Expire(_ context.Context, id uuid.UUID) error {
	r.expired = append(r.expired, id)
	return nil
}

var testNow = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func newTestWorker(store *memStore, exp *recordingExpirer) *Worker {
	return NewWorker(store, exp, audit.Nop{}, clock.NewFixed(testNow), observability.NewLogger())
}

func addEvent(store *memStore, issued, active, admitted int) uuid.UUID {
	id := uuid.New()
	store.events[id] = &domain.Event{ID: id, Status: domain.EventPublished, Capacity: 100, IssuedCount: issued}
	store.activeSum[id] = active
	store.admittable[id] = admitted
	return id
}

func TestRunOnce_CorrectsDrift(t *testing.T) {
	store := newMemStore()
	exp := &recordingExpirer{}
	// Ledger says 7 but only 2 active holds and 3 live tickets exist.
	eventID := addEvent(store, 7, 2, 3)

	if err := newTestWorker(store, exp).RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := store.events[eventID].IssuedCount; got != 5 {
		t.Errorf("expected issued_count 5, got %d", got)
	}
	if len(store.outbox) != 1 || store.outbox[0] != "event.capacity_reconciled" {
		t.Errorf("expected one reconciliation record, got %v", store.outbox)
	}
}

func TestRunOnce_NoDriftNoWrite(t *testing.T) {
	store := newMemStore()
	exp := &recordingExpirer{}
	eventID := addEvent(store, 5, 2, 3)

	if err := newTestWorker(store, exp).RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.events[eventID].IssuedCount; got != 5 {
		t.Errorf("issued_count changed without drift: %d", got)
	}
	if len(store.outbox) != 0 {
		t.Errorf("unexpected reconciliation record: %v", store.outbox)
	}
}

func TestRunOnce_ConvergesRepeatedRuns(t *testing.T) {
	store := newMemStore()
	exp := &recordingExpirer{}
	eventID := addEvent(store, 9, 1, 1)

	w := newTestWorker(store, exp)
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.events[eventID].IssuedCount; got != 2 {
		t.Errorf("expected issued_count 2, got %d", got)
	}
	// Only the first run observes drift.
	if len(store.outbox) != 1 {
		t.Errorf("expected one reconciliation record, got %d", len(store.outbox))
	}
}

func TestRunOnce_SweepsLapsedReservations(t *testing.T) {
	store := newMemStore()
	exp := &recordingExpirer{}
	addEvent(store, 0, 0, 0)

	lapsed := domain.Reservation{ID: uuid.New(), Status: domain.ReservationActive, ExpiresAt: testNow.Add(-time.Minute)}
	live := domain.Reservation{ID: uuid.New(), Status: domain.ReservationActive, ExpiresAt: testNow.Add(time.Minute)}
	converted := domain.Reservation{ID: uuid.New(), Status: domain.ReservationConverted, ExpiresAt: testNow.Add(-time.Hour)}
	store.reservations = []domain.Reservation{lapsed, live, converted}

	if err := newTestWorker(store, exp).RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(exp.expired) != 1 || exp.expired[0] != lapsed.ID {
		t.Errorf("expected only the lapsed reservation expired, got %v", exp.expired)
	}
}
