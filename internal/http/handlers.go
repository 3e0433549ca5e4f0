package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/adapters/crdb"
	mongoadapter "github.com/tessera-live/tessera/internal/adapters/mongo"
	"github.com/tessera-live/tessera/internal/checkin"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/idempotency"
	"github.com/tessera-live/tessera/internal/ticketing"
)

type Handlers struct {
	tickets *ticketing.Service
	checkin *checkin.Validator
	repo    *crdb.Repository
	catalog *mongoadapter.CatalogRepository
	idemp   *idempotency.Idempotency
}

func NewHandlers(tickets *ticketing.Service, validator *checkin.Validator, repo *crdb.Repository, catalog *mongoadapter.CatalogRepository, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		tickets: tickets,
		checkin: validator,
		repo:    repo,
		catalog: catalog,
		idemp:   idemp,
	}
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Venue       string    `json:"venue"`
		Date        time.Time `json:"date"`
		Capacity    int       `json:"capacity"`
		MaxPerUser  int       `json:"max_per_user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Capacity <= 0 {
		http.Error(w, "title and positive capacity required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	ev := domain.Event{
		ID:         uuid.New(),
		Title:      req.Title,
		Status:     domain.EventPublished,
		Capacity:   req.Capacity,
		MaxPerUser: req.MaxPerUser,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.repo.CreateEvent(r.Context(), ev); err != nil {
		writeError(w, err)
		return
	}

	// Descriptive fields live in the catalog; a write failure there is not
	// fatal for admission, the reconciler does not depend on it.
	_ = h.catalog.CreateEvent(r.Context(), mongoadapter.EventDoc{
		ID:          ev.ID,
		Title:       req.Title,
		Description: req.Description,
		Venue:       req.Venue,
		Date:        req.Date,
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"event_id": ev.ID,
		"capacity": ev.Capacity,
		"status":   ev.Status,
	})
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ev, err := h.repo.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"event_id":     ev.ID,
		"title":        ev.Title,
		"status":       ev.Status,
		"capacity":     ev.Capacity,
		"issued_count": ev.IssuedCount,
		"remaining":    ev.Remaining(),
	}
	if doc, err := h.catalog.GetEvent(r.Context(), id); err == nil {
		resp["description"] = doc.Description
		resp["venue"] = doc.Venue
		resp["date"] = doc.Date
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.replay(w, r, key) {
		return
	}

	var req struct {
		EventID  uuid.UUID `json:"event_id"`
		Quantity int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.tickets.Reserve(r.Context(), userID(r.Context()), req.EventID, req.Quantity, key)
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"reservation_id": res.ID,
		"status":         res.Status,
		"quantity":       res.Quantity,
		"expires_at":     res.ExpiresAt.Format(time.RFC3339),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tickets, err := h.tickets.Confirm(r.Context(), id, userID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, map[string]interface{}{
			"ticket_id":    t.ID,
			"ticket_index": t.TicketIndex,
			"code":         t.Code,
			"entry_token":  t.EntryToken,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservation_id": id,
		"tickets":        out,
	})
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.repo.GetReservation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.UserID != userID(r.Context()) {
		http.Error(w, "reservation not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservation_id": res.ID,
		"event_id":       res.EventID,
		"status":         res.Status,
		"quantity":       res.Quantity,
		"expires_at":     res.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.repo.ListUserTickets(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, map[string]interface{}{
			"ticket_id":    t.ID,
			"event_id":     t.EventID,
			"ticket_index": t.TicketIndex,
			"code":         t.Code,
			"entry_token":  t.EntryToken,
			"status":       t.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": out})
}

func (h *Handlers) Checkin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token   string    `json:"token"`
		Code    string    `json:"code"`
		EventID uuid.UUID `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" && req.Code == "" {
		http.Error(w, "token or code required", http.StatusBadRequest)
		return
	}

	t, err := h.checkin.Validate(r.Context(), checkin.Input{
		Token:           req.Token,
		Code:            req.Code,
		ExpectedEventID: req.EventID,
		ValidatorID:     userID(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":       "ADMITTED",
		"ticket_id":    t.ID,
		"event_id":     t.EventID,
		"validated_at": t.ValidatedAt.Format(time.RFC3339),
	})
}

func (h *Handlers) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		ReceiverEmail string `json:"receiver_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ReceiverEmail == "" {
		http.Error(w, "receiver_email required", http.StatusBadRequest)
		return
	}

	tr, err := h.tickets.InitiateTransfer(r.Context(), ticketID, userID(r.Context()), req.ReceiverEmail)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transfer_id":   tr.ID,
		"transfer_code": tr.TransferCode,
		"expires_at":    tr.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) ClaimTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransferCode string `json:"transfer_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TransferCode == "" {
		http.Error(w, "transfer_code required", http.StatusBadRequest)
		return
	}

	if err := h.tickets.ClaimTransfer(r.Context(), req.TransferCode, userID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": "CLAIMED"})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

// replay serves a cached response for a previously seen idempotency key.
func (h *Handlers) replay(w http.ResponseWriter, r *http.Request, key string) bool {
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil || existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	var capErr *domain.InsufficientCapacityError
	if errors.As(err, &capErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "insufficient capacity",
			"requested": capErr.Requested,
			"remaining": capErr.Remaining,
		})
		return
	}
	var limitErr *domain.TicketLimitError
	if errors.As(err, &limitErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "per-user ticket limit reached",
			"limit":     limitErr.Limit,
			"remaining": limitErr.Remaining,
		})
		return
	}
	var usedErr *domain.AlreadyUsedError
	if errors.As(err, &usedErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":        "ticket already used",
			"result":       "DENIED",
			"ticket_id":    usedErr.TicketID,
			"validated_at": usedErr.ValidatedAt.Format(time.RFC3339),
			"validated_by": usedErr.ValidatedBy,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrIdempotencyKeyRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidToken):
		http.Error(w, "invalid token or code", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrReservationExpired):
		http.Error(w, "reservation expired", http.StatusGone)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.Is(err, domain.ErrEventUnavailable),
		errors.Is(err, domain.ErrReservationInactive),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrEventMismatch),
		errors.Is(err, domain.ErrTicketCancelled),
		errors.Is(err, domain.ErrTransferUnavailable),
		errors.Is(err, domain.ErrTransferProcessed),
		errors.Is(err, domain.ErrTransferExpired):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
