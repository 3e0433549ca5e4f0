package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("test-signing-secret"), clock.NewFixed(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)))

	payload := Payload{
		TicketID:   uuid.New(),
		TicketCode: "5D41402ABC4B2A76B9719D91",
		EventID:    uuid.New(),
		UserID:     uuid.New(),
	}

	tok, err := codec.Sign(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	decoded, err := codec.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if *decoded != payload {
		t.Fatalf("expected payload %+v, got %+v", payload, *decoded)
	}
}

func TestCodec_RejectsTampering(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("test-signing-secret"), clock.NewSystem())

	tok, err := codec.Sign(Payload{
		TicketID:   uuid.New(),
		TicketCode: "ABCDEF0123456789ABCDEF01",
		EventID:    uuid.New(),
		UserID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Flip one character in the signature segment.
	flipped := []byte(tok)
	i := strings.LastIndex(tok, ".") + 1
	if flipped[i] == 'A' {
		flipped[i] = 'B'
	} else {
		flipped[i] = 'A'
	}

	if _, err := codec.Verify(string(flipped)); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodec_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	signer := NewCodec([]byte("secret-one"), clock.NewSystem())
	verifier := NewCodec([]byte("secret-two"), clock.NewSystem())

	tok, err := signer.Sign(Payload{
		TicketID:   uuid.New(),
		TicketCode: "ABCDEF0123456789ABCDEF01",
		EventID:    uuid.New(),
		UserID:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := verifier.Verify(tok); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCodec_RejectsGarbage(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("test-signing-secret"), clock.NewSystem())

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Verify(tok); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("Verify(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}
