package card

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Store persists cards and transfer records.
type Store interface {
	Get(ctx context.Context, id string) (Card, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Card, error)
	List(ctx context.Context) ([]Card, error)
	// ListExpiring returns cards not yet EXPIRED whose expiration date is
	// strictly before the calendar day of now.
	ListExpiring(ctx context.Context, now time.Time) ([]Card, error)
	ExistsByNumber(ctx context.Context, fingerprint string) (bool, error)
	Create(ctx context.Context, c Card) error
	Delete(ctx context.Context, id string) error
	TransfersByCard(ctx context.Context, cardID string) ([]Transfer, error)
	// WithLocked runs fn holding update locks on every card in ids. Locks are
	// taken in ascending id order. Writes made through the Tx become visible
	// together when fn returns nil and are discarded otherwise.
	WithLocked(ctx context.Context, ids []string, fn func(tx Tx) error) error
}

// Tx is a unit of work over a set of locked cards.
type Tx interface {
	Get(ctx context.Context, id string) (Card, error)
	// Put stores c if its Version matches the current one and returns the
	// card with its new version. A mismatch yields ErrConcurrentModification.
	Put(ctx context.Context, c Card) (Card, error)
	AppendTransfer(ctx context.Context, t Transfer) error
}

// CanonicalID returns the lowercase hyphenated form of a UUID. Strings that
// do not parse are returned unchanged.
func CanonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// lockOrder canonicalizes, sorts and dedupes ids so every caller acquires
// row locks in the same global order and never locks one row twice.
func lockOrder(ids []string) []string {
	ordered := make([]string, len(ids))
	for i, id := range ids {
		ordered[i] = CanonicalID(id)
	}
	slices.Sort(ordered)
	return slices.Compact(ordered)
}
