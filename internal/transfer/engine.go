package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/logging"
	"github.com/congo-pay/bankcards/internal/notification"
)

const defaultMaxAttempts = 3

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	MaxAttempts int
	Now         func() time.Time
}

// Engine moves money between two cards.
type Engine struct {
	store       card.Store
	notifier    notification.Notifier
	now         func() time.Time
	maxAttempts int
	logger      *slog.Logger
}

// NewEngine constructs a transfer engine.
func NewEngine(store card.Store, notifier notification.Notifier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:       store,
		notifier:    notifier,
		now:         cfg.Now,
		maxAttempts: cfg.MaxAttempts,
		logger:      logging.OrDiscard(logger),
	}
}

// Input captures the data needed to move funds between cards.
type Input struct {
	FromCardID  string
	ToCardID    string
	Amount      int64
	Description string
	Initiator   card.Caller
	// AdminInitiated skips the ownership match. The initiator must be an admin.
	AdminInitiated bool
}

// Transfer validates the request against fresh card state and, when every
// check passes, debits the source, credits the destination and records the
// transfer as one unit.
func (e *Engine) Transfer(ctx context.Context, in Input) (card.Transfer, error) {
	in.FromCardID = card.CanonicalID(in.FromCardID)
	in.ToCardID = card.CanonicalID(in.ToCardID)
	if in.Amount <= 0 {
		return card.Transfer{}, fmt.Errorf("%w: amount must be positive, got %d", card.ErrInvalidAmount, in.Amount)
	}
	if in.FromCardID == in.ToCardID {
		return card.Transfer{}, fmt.Errorf("%w: source and destination are the same card %s", card.ErrInvalidTransfer, in.FromCardID)
	}
	if in.AdminInitiated {
		if err := card.RequireAdmin(in.Initiator, "transfer from", in.FromCardID); err != nil {
			return card.Transfer{}, err
		}
	}

	var (
		record card.Transfer
		dest   card.Card
		err    error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		record, dest, err = e.attempt(ctx, in)
		if !errors.Is(err, card.ErrConcurrentModification) {
			break
		}
		e.logger.Warn("transfer conflict, retrying", "from_card_id", in.FromCardID, "to_card_id", in.ToCardID, "attempt", attempt)
	}
	if err != nil {
		return card.Transfer{}, err
	}

	e.logger.Info("transfer completed",
		"transfer_id", record.ID,
		"from_card_id", record.FromCardID,
		"to_card_id", record.ToCardID,
		"amount", record.Amount,
		"initiator_id", record.InitiatorID,
	)
	notification.Deliver(ctx, e.notifier, e.logger, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: dest.OwnerID,
		CardID:      dest.ID,
		Body:        fmt.Sprintf("You received %s from card %s", card.FormatAmount(record.Amount), record.FromCardID),
	})
	return record, nil
}

func (e *Engine) attempt(ctx context.Context, in Input) (card.Transfer, card.Card, error) {
	var (
		record card.Transfer
		dest   card.Card
	)
	err := e.store.WithLocked(ctx, []string{in.FromCardID, in.ToCardID}, func(tx card.Tx) error {
		from, err := tx.Get(ctx, in.FromCardID)
		if err != nil {
			return err
		}
		to, err := tx.Get(ctx, in.ToCardID)
		if err != nil {
			return err
		}

		if !in.AdminInitiated {
			if err := card.RequireOwner(from, in.Initiator.ID, "transfer from"); err != nil {
				return err
			}
			if err := card.RequireOwner(to, in.Initiator.ID, "transfer to"); err != nil {
				return err
			}
		}

		now := e.now()
		for _, c := range []card.Card{from, to} {
			if !c.Transferable(now) {
				return &card.NotActiveError{CardID: c.ID, Status: c.Status}
			}
		}
		if from.Balance < in.Amount {
			return &card.InsufficientFundsError{CardID: from.ID, Balance: from.Balance, Amount: in.Amount}
		}
		if to.Balance > math.MaxInt64-in.Amount {
			return fmt.Errorf("%w: destination balance would overflow", card.ErrInvalidAmount)
		}

		from.Balance -= in.Amount
		to.Balance += in.Amount
		if _, err := tx.Put(ctx, from); err != nil {
			return err
		}
		if dest, err = tx.Put(ctx, to); err != nil {
			return err
		}

		record = card.Transfer{
			ID:          uuid.NewString(),
			FromCardID:  from.ID,
			ToCardID:    to.ID,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			InitiatorID: in.Initiator.ID,
			Status:      card.TransferStatusSuccess,
			CreatedAt:   now.UTC(),
		}
		return tx.AppendTransfer(ctx, record)
	})
	return record, dest, err
}

// History lists the transfers touching a card, newest first, to its owner
// or an admin.
func (e *Engine) History(ctx context.Context, cardID string, caller card.Caller) ([]card.Transfer, error) {
	c, err := e.store.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := card.Authorize(c, caller, "view transfers of"); err != nil {
		return nil, err
	}
	return e.store.TransfersByCard(ctx, cardID)
}
