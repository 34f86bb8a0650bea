package card

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/bankcards/internal/logging"
)

// Manager owns the card status state machine. Every status change, manual
// or swept, goes through it.
type Manager struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewManager builds a lifecycle manager. A nil clock uses time.Now.
func NewManager(store Store, now func() time.Time, logger *slog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, now: now, logger: logging.OrDiscard(logger)}
}

// Get returns a card visible to the caller.
func (m *Manager) Get(ctx context.Context, cardID string, caller Caller) (Card, error) {
	c, err := m.store.Get(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	if err := Authorize(c, caller, "view"); err != nil {
		return Card{}, err
	}
	return c, nil
}

// ListMine returns the caller's own cards.
func (m *Manager) ListMine(ctx context.Context, caller Caller) ([]Card, error) {
	return m.store.ListByOwner(ctx, caller.ID)
}

// ListAll returns every card. Admin only.
func (m *Manager) ListAll(ctx context.Context, caller Caller) ([]Card, error) {
	if err := RequireAdmin(caller, "list", ""); err != nil {
		return nil, err
	}
	return m.store.List(ctx)
}

// Block moves a live card to BLOCKED.
func (m *Manager) Block(ctx context.Context, cardID string, caller Caller) (Card, error) {
	now := m.now()
	return m.mutate(ctx, cardID, func(c Card) (Card, bool, error) {
		if err := Authorize(c, caller, "block"); err != nil {
			return c, false, err
		}
		if c.Status == StatusExpired || c.DateExpired(now) {
			return c, false, &StateError{CardID: c.ID, Status: c.Status, Reason: ErrCardExpired}
		}
		if c.Status == StatusBlocked {
			return c, false, &StateError{CardID: c.ID, Status: c.Status, Reason: ErrAlreadyBlocked}
		}
		c.Status = StatusBlocked
		return c, true, nil
	})
}

// Unblock releases a BLOCKED card. A card past its expiration date settles
// into EXPIRED instead of ACTIVE.
func (m *Manager) Unblock(ctx context.Context, cardID string, caller Caller) (Card, error) {
	now := m.now()
	return m.mutate(ctx, cardID, func(c Card) (Card, bool, error) {
		if err := Authorize(c, caller, "unblock"); err != nil {
			return c, false, err
		}
		if c.Status != StatusBlocked {
			return c, false, &StateError{CardID: c.ID, Status: c.Status, Reason: ErrNotBlocked}
		}
		if c.DateExpired(now) {
			m.logger.Warn("unblocking expired card", "card_id", c.ID)
			c.Status = StatusExpired
		} else {
			c.Status = StatusActive
		}
		return c, true, nil
	})
}

// SetStatus is the administrative override. It skips the transition guards
// but refuses to put a card past its expiration date into a live status.
func (m *Manager) SetStatus(ctx context.Context, cardID string, status Status, caller Caller) (Card, error) {
	if err := RequireAdmin(caller, "set status of", cardID); err != nil {
		return Card{}, err
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return Card{}, err
	}
	now := m.now()
	return m.mutate(ctx, cardID, func(c Card) (Card, bool, error) {
		if status != StatusExpired && c.DateExpired(now) {
			return c, false, &StateError{CardID: c.ID, Status: c.Status, Reason: ErrCardExpired}
		}
		if c.Status == status {
			return c, false, nil
		}
		m.logger.Info("card status overridden", "card_id", c.ID, "from", c.Status, "to", status, "admin_id", caller.ID)
		c.Status = status
		return c, true, nil
	})
}

// Expire marks the card EXPIRED when its date has passed relative to now.
// It reports whether the card changed and is a no-op otherwise.
func (m *Manager) Expire(ctx context.Context, cardID string, now time.Time) (Card, bool, error) {
	var changed bool
	c, err := m.mutate(ctx, cardID, func(c Card) (Card, bool, error) {
		if c.Status == StatusExpired || !c.DateExpired(now) {
			return c, false, nil
		}
		c.Status = StatusExpired
		changed = true
		return c, true, nil
	})
	if err != nil {
		return Card{}, false, err
	}
	return c, changed, nil
}

// Delete removes a card. Admin only.
func (m *Manager) Delete(ctx context.Context, cardID string, caller Caller) error {
	if err := RequireAdmin(caller, "delete", cardID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, cardID); err != nil {
		return err
	}
	m.logger.Info("card deleted", "card_id", cardID, "admin_id", caller.ID)
	return nil
}

func (m *Manager) mutate(ctx context.Context, cardID string, apply func(Card) (Card, bool, error)) (Card, error) {
	var out Card
	err := m.store.WithLocked(ctx, []string{cardID}, func(tx Tx) error {
		c, err := tx.Get(ctx, cardID)
		if err != nil {
			return err
		}
		next, changed, err := apply(c)
		if err != nil {
			return err
		}
		if !changed {
			out = c
			return nil
		}
		out, err = tx.Put(ctx, next)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	return out, nil
}
