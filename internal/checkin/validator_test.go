package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/audit"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/token"
)

type memStore struct {
	tickets map[uuid.UUID]*domain.Ticket
	outbox  []string
}

func newMemStore() *memStore {
	return &memStore{tickets: map[uuid.UUID]*domain.Ticket{}}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) GetTicket(_ context.Context, id uuid.UUID) (domain.Ticket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return *t, nil
}

func (m *memStore) GetTicketByCode(_ context.Context, code string) (domain.Ticket, error) {
	for _, t := range m.tickets {
		if t.Code == code {
			return *t, nil
		}
	}
	return domain.Ticket{}, domain.ErrNotFound
}

func (m *memStore) MarkTicketUsed(_ context.Context, id, validatorID uuid.UUID, at time.Time) (bool, error) {
	t, ok := m.tickets[id]
	if !ok || t.Status != domain.TicketIssued {
		return false, nil
	}
	t.Status = domain.TicketUsed
	t.ValidatedAt = &at
	t.ValidatedBy = &validatorID
	return true, nil
}

func (m *memStore) EnqueueEvent(_ context.Context, _ string, _ uuid.UUID, eventType string, _ any) error {
	m.outbox = append(m.outbox, eventType)
	return nil
}

var testNow = time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	validator *Validator
	codec     *token.Codec
	eventID   uuid.UUID
	gateStaff uuid.UUID
}

func newFixture() *fixture {
	store := newMemStore()
	codec := token.NewCodec([]byte("gate-secret"), clock.NewFixed(testNow))
	return &fixture{
		store:     store,
		validator: NewValidator(store, audit.Nop{}, codec, clock.NewFixed(testNow)),
		codec:     codec,
		eventID:   uuid.New(),
		gateStaff: uuid.New(),
	}
}

// issued stores an ISSUED ticket and returns it with a signed entry token.
func (f *fixture) issued(t *testing.T, code string) domain.Ticket {
	t.Helper()
	tk := domain.Ticket{
		ID:      uuid.New(),
		EventID: f.eventID,
		UserID:  uuid.New(),
		Code:    code,
		Status:  domain.TicketIssued,
	}
	tok, err := f.codec.Sign(token.Payload{
		TicketID:   tk.ID,
		TicketCode: tk.Code,
		EventID:    tk.EventID,
		UserID:     tk.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	tk.EntryToken = tok
	stored := tk
	f.store.tickets[tk.ID] = &stored
	return tk
}

func TestValidate_AdmitsByToken(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "AB12CD34EF56")

	admitted, err := f.validator.Validate(context.Background(), Input{
		Token:           tk.EntryToken,
		ExpectedEventID: f.eventID,
		ValidatorID:     f.gateStaff,
	})
	if err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if admitted.ID != tk.ID {
		t.Errorf("admitted wrong ticket: %s", admitted.ID)
	}
	if admitted.Status != domain.TicketUsed {
		t.Errorf("expected USED, got %s", admitted.Status)
	}
	if admitted.ValidatedAt == nil || !admitted.ValidatedAt.Equal(testNow) {
		t.Errorf("expected validated_at %v, got %v", testNow, admitted.ValidatedAt)
	}
	if admitted.ValidatedBy == nil || *admitted.ValidatedBy != f.gateStaff {
		t.Error("expected validated_by to record the gate staff")
	}
}

func TestValidate_AdmitsByCode(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "FFEE00112233")

	admitted, err := f.validator.Validate(context.Background(), Input{
		Code:            tk.Code,
		ExpectedEventID: f.eventID,
		ValidatorID:     f.gateStaff,
	})
	if err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if admitted.ID != tk.ID {
		t.Errorf("admitted wrong ticket: %s", admitted.ID)
	}
}

func TestValidate_SecondScanRejected(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "AA11BB22CC33")

	in := Input{Token: tk.EntryToken, ExpectedEventID: f.eventID, ValidatorID: f.gateStaff}
	if _, err := f.validator.Validate(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	secondGate := uuid.New()
	_, err := f.validator.Validate(context.Background(), Input{
		Token:           tk.EntryToken,
		ExpectedEventID: f.eventID,
		ValidatorID:     secondGate,
	})
	var used *domain.AlreadyUsedError
	if !errors.As(err, &used) {
		t.Fatalf("expected AlreadyUsedError, got %v", err)
	}
	if !used.ValidatedAt.Equal(testNow) {
		t.Errorf("expected original validation time, got %v", used.ValidatedAt)
	}
	if used.ValidatedBy != f.gateStaff {
		t.Errorf("expected original validator id, got %s", used.ValidatedBy)
	}
}

func TestValidate_TokenAndCodeShareState(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "DD44EE55FF66")

	if _, err := f.validator.Validate(context.Background(), Input{Code: tk.Code, ValidatorID: f.gateStaff}); err != nil {
		t.Fatal(err)
	}
	_, err := f.validator.Validate(context.Background(), Input{Token: tk.EntryToken, ValidatorID: f.gateStaff})
	var used *domain.AlreadyUsedError
	if !errors.As(err, &used) {
		t.Fatalf("code then token should hit the same state, got %v", err)
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "0011AABB2233")

	bad := []byte(tk.EntryToken)
	bad[len(bad)-1] ^= 0x01
	_, err := f.validator.Validate(context.Background(), Input{Token: string(bad), ValidatorID: f.gateStaff})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if f.store.tickets[tk.ID].Status != domain.TicketIssued {
		t.Error("rejected scan consumed the ticket")
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	f := newFixture()
	f.issued(t, "REAL00000001")

	_, err := f.validator.Validate(context.Background(), Input{Code: "NOPE00000000", ValidatorID: f.gateStaff})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_EventMismatch(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "1234567890AB")

	_, err := f.validator.Validate(context.Background(), Input{
		Token:           tk.EntryToken,
		ExpectedEventID: uuid.New(),
		ValidatorID:     f.gateStaff,
	})
	if !errors.Is(err, domain.ErrEventMismatch) {
		t.Errorf("expected ErrEventMismatch, got %v", err)
	}
	if f.store.tickets[tk.ID].Status != domain.TicketIssued {
		t.Error("mismatched scan consumed the ticket")
	}
}

func TestValidate_StaleTokenPayload(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "STALE0000001")

	// Valid signature over a payload whose code no longer matches the row.
	forged, err := f.codec.Sign(token.Payload{
		TicketID:   tk.ID,
		TicketCode: "OTHER0000001",
		EventID:    tk.EventID,
		UserID:     tk.UserID,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.validator.Validate(context.Background(), Input{Token: forged, ValidatorID: f.gateStaff})
	if !errors.Is(err, domain.ErrEventMismatch) {
		t.Errorf("expected ErrEventMismatch, got %v", err)
	}
}

func TestValidate_CancelledTicket(t *testing.T) {
	f := newFixture()
	tk := f.issued(t, "CANCEL000001")
	f.store.tickets[tk.ID].Status = domain.TicketCancelled

	_, err := f.validator.Validate(context.Background(), Input{Token: tk.EntryToken, ValidatorID: f.gateStaff})
	if !errors.Is(err, domain.ErrTicketCancelled) {
		t.Errorf("expected ErrTicketCancelled, got %v", err)
	}
}

func TestValidate_NoCredential(t *testing.T) {
	f := newFixture()

	_, err := f.validator.Validate(context.Background(), Input{ValidatorID: f.gateStaff})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
