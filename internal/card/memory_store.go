package card

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu           sync.RWMutex
	cards        map[string]Card
	fingerprints map[string]string
	transfers    []Transfer

	rowsMu sync.Mutex
	rows   map[string]*rowLock
}

// rowLock is released from the rows map once no goroutine holds or waits on it.
type rowLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for unit tests.
func NewMemoryStore() Store {
	return &memoryStore{
		cards:        make(map[string]Card),
		fingerprints: make(map[string]string),
		rows:         make(map[string]*rowLock),
	}
}

func (s *memoryStore) Get(_ context.Context, id string) (Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[CanonicalID(id)]
	if !ok {
		return Card{}, notFound(id)
	}
	return c, nil
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID string) ([]Card, error) {
	ownerID = CanonicalID(ownerID)
	return s.filter(func(c Card) bool { return c.OwnerID == ownerID }), nil
}

func (s *memoryStore) List(_ context.Context) ([]Card, error) {
	return s.filter(func(Card) bool { return true }), nil
}

func (s *memoryStore) ListExpiring(_ context.Context, now time.Time) ([]Card, error) {
	return s.filter(func(c Card) bool { return c.Status != StatusExpired && c.DateExpired(now) }), nil
}

func (s *memoryStore) filter(keep func(Card) bool) []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Card, 0)
	for _, c := range s.cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Card) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (s *memoryStore) ExistsByNumber(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fingerprints[fingerprint]
	return ok, nil
}

func (s *memoryStore) Create(_ context.Context, c Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cards[c.ID]; exists {
		return fmt.Errorf("card %s exists", c.ID)
	}
	if _, exists := s.fingerprints[c.NumberFingerprint]; exists {
		return ErrDuplicateCardNumber
	}
	s.cards[c.ID] = c
	s.fingerprints[c.NumberFingerprint] = c.ID
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	id = CanonicalID(id)
	s.lockRow(id)
	defer s.unlockRow(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return notFound(id)
	}
	delete(s.cards, id)
	delete(s.fingerprints, c.NumberFingerprint)
	return nil
}

func (s *memoryStore) TransfersByCard(_ context.Context, cardID string) ([]Transfer, error) {
	cardID = CanonicalID(cardID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transfer, 0)
	for i := len(s.transfers) - 1; i >= 0; i-- {
		t := s.transfers[i]
		if t.FromCardID == cardID || t.ToCardID == cardID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryStore) WithLocked(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	ordered := lockOrder(ids)
	for _, id := range ordered {
		s.lockRow(id)
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			s.unlockRow(ordered[i])
		}
	}()

	tx := &memoryTx{store: s, locked: make(map[string]struct{}, len(ordered)), staged: make(map[string]Card)}
	for _, id := range ordered {
		tx.locked[id] = struct{}{}
	}

	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *memoryStore) commit(_ context.Context, tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.staged {
		if _, ok := s.cards[id]; !ok {
			return ErrConcurrentModification
		}
	}
	for id, c := range tx.staged {
		s.cards[id] = c
	}
	s.transfers = append(s.transfers, tx.transfers...)
	return nil
}

func (s *memoryStore) lockRow(id string) {
	s.rowsMu.Lock()
	row, ok := s.rows[id]
	if !ok {
		row = &rowLock{}
		s.rows[id] = row
	}
	row.refs++
	s.rowsMu.Unlock()

	row.mu.Lock()
}

func (s *memoryStore) unlockRow(id string) {
	s.rowsMu.Lock()
	defer s.rowsMu.Unlock()
	row := s.rows[id]
	row.mu.Unlock()
	row.refs--
	if row.refs == 0 {
		delete(s.rows, id)
	}
}

func (s *memoryStore) rowLocks() int {
	s.rowsMu.Lock()
	defer s.rowsMu.Unlock()
	return len(s.rows)
}

type memoryTx struct {
	store     *memoryStore
	locked    map[string]struct{}
	staged    map[string]Card
	transfers []Transfer
}

func (tx *memoryTx) Get(ctx context.Context, id string) (Card, error) {
	id = CanonicalID(id)
	if _, ok := tx.locked[id]; !ok {
		return Card{}, fmt.Errorf("card %s is not locked by this transaction", id)
	}
	if c, ok := tx.staged[id]; ok {
		return c, nil
	}
	return tx.store.Get(ctx, id)
}

func (tx *memoryTx) Put(ctx context.Context, c Card) (Card, error) {
	c.ID = CanonicalID(c.ID)
	current, err := tx.Get(ctx, c.ID)
	if err != nil {
		return Card{}, err
	}
	if c.Version != current.Version {
		return Card{}, ErrConcurrentModification
	}
	if _, ok := tx.staged[c.ID]; !ok {
		c.Version = current.Version + 1
	}
	c.UpdatedAt = time.Now().UTC()
	tx.staged[c.ID] = c
	return c, nil
}

func (tx *memoryTx) AppendTransfer(_ context.Context, t Transfer) error {
	tx.transfers = append(tx.transfers, t)
	return nil
}
