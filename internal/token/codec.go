package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
)

// Payload is what an entry token attests: the ticket, its unguessable
// code, and the event and owner it was issued for. Tokens carry no
// expiration; usability is governed by the stored ticket status.
type Payload struct {
	TicketID   uuid.UUID
	TicketCode string
	EventID    uuid.UUID
	UserID     uuid.UUID
}

type entryClaims struct {
	TicketID   string `json:"ticketId"`
	TicketCode string `json:"ticketCode"`
	EventID    string `json:"eventId"`
	UserID     string `json:"userId"`
	jwt.RegisteredClaims
}

// Codec signs and verifies entry tokens with a server-held symmetric
// secret. It holds no state beyond the secret and performs no I/O.
type Codec struct {
	secret []byte
	clock  clock.Clock
}

func NewCodec(secret []byte, clk clock.Clock) *Codec {
	return &Codec{secret: secret, clock: clk}
}

func (c *Codec) Sign(p Payload) (string, error) {
	claims := entryClaims{
		TicketID:   p.TicketID.String(),
		TicketCode: p.TicketCode,
		EventID:    p.EventID.String(),
		UserID:     p.UserID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.clock.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify performs the cryptographic check only. Callers must cross-check
// the decoded fields against the stored ticket and event rows.
func (c *Codec) Verify(tok string) (*Payload, error) {
	parsed, err := jwt.ParseWithClaims(tok, &entryClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*entryClaims)
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	ticketID, err := uuid.Parse(claims.TicketID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	eventID, err := uuid.Parse(claims.EventID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	return &Payload{
		TicketID:   ticketID,
		TicketCode: claims.TicketCode,
		EventID:    eventID,
		UserID:     userID,
	}, nil
}
