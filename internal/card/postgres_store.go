package card

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	cardColumns = `id, owner_id, card_holder, number_cipher, number_fingerprint, cvv_cipher,
        expires_on, balance, status, version, created_at, updated_at`
)

// PostgresStore persists cards and transfers in PostgreSQL using row-level locks.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed card store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get fetches a card by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (Card, error) {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return Card{}, notFound(id)
	}
	c, err := scanCard(s.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, cardID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, notFound(id)
	}
	return c, err
}

// ListByOwner returns every card of one owner, oldest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []Card{}, nil
	}
	return s.query(ctx, `SELECT `+cardColumns+` FROM cards WHERE owner_id = $1 ORDER BY created_at, id`, owner)
}

// List returns all cards, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]Card, error) {
	return s.query(ctx, `SELECT `+cardColumns+` FROM cards ORDER BY created_at, id`)
}

// ListExpiring returns cards past their expiration date that are not EXPIRED yet.
func (s *PostgresStore) ListExpiring(ctx context.Context, now time.Time) ([]Card, error) {
	return s.query(ctx, `SELECT `+cardColumns+` FROM cards
        WHERE expires_on < $1 AND status <> $2 ORDER BY id`, DateOf(now), string(StatusExpired))
}

// ExistsByNumber checks the card number fingerprint for uniqueness.
func (s *PostgresStore) ExistsByNumber(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cards WHERE number_fingerprint = $1)`, fingerprint).Scan(&exists)
	return exists, err
}

// Create inserts a new card.
func (s *PostgresStore) Create(ctx context.Context, c Card) error {
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(c.OwnerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO cards (`+cardColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		cardID, ownerID, c.CardHolder, c.NumberCipher, c.NumberFingerprint, c.CVVCipher,
		DateOf(c.ExpiresOn), c.Balance, string(c.Status), c.Version, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return mapPgError(err)
}

// Delete removes a card, waiting for any in-flight row lock on it.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	cardID, err := uuid.Parse(id)
	if err != nil {
		return notFound(id)
	}
	cmd, err := s.db.Exec(ctx, `DELETE FROM cards WHERE id = $1`, cardID)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// TransfersByCard lists transfer records touching a card, newest first.
func (s *PostgresStore) TransfersByCard(ctx context.Context, cardID string) ([]Transfer, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return []Transfer{}, nil
	}
	rows, err := s.db.Query(ctx, `SELECT id, from_card_id, to_card_id, amount, description, initiator_id, status, created_at
        FROM card_transfers WHERE from_card_id = $1 OR to_card_id = $1 ORDER BY created_at DESC, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transfer, 0)
	for rows.Next() {
		var (
			t                        Transfer
			tid, from, to, initiator uuid.UUID
		)
		if err := rows.Scan(&tid, &from, &to, &t.Amount, &t.Description, &initiator, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.ID, t.FromCardID, t.ToCardID, t.InitiatorID = tid.String(), from.String(), to.String(), initiator.String()
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// WithLocked opens a transaction and takes SELECT ... FOR UPDATE locks on the
// cards one by one in ascending id order. Locked cards are keyed by their
// canonical id.
func (s *PostgresStore) WithLocked(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	locked := &postgresTx{tx: tx, cards: make(map[string]Card)}
	for _, id := range lockOrder(ids) {
		cardID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		c, err := scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1 FOR UPDATE`, cardID))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return mapPgError(err)
		}
		locked.cards[id] = c
	}

	if err := fn(locked); err != nil {
		return err
	}
	return mapPgError(tx.Commit(ctx))
}

type postgresTx struct {
	tx    pgx.Tx
	cards map[string]Card
}

func (t *postgresTx) Get(_ context.Context, id string) (Card, error) {
	c, ok := t.cards[CanonicalID(id)]
	if !ok {
		return Card{}, notFound(id)
	}
	return c, nil
}

func (t *postgresTx) Put(ctx context.Context, c Card) (Card, error) {
	c.ID = CanonicalID(c.ID)
	if _, ok := t.cards[c.ID]; !ok {
		return Card{}, notFound(c.ID)
	}
	cardID, err := uuid.Parse(c.ID)
	if err != nil {
		return Card{}, err
	}
	err = t.tx.QueryRow(ctx, `UPDATE cards
        SET card_holder = $1, balance = $2, status = $3, version = version + 1, updated_at = $4
        WHERE id = $5 AND version = $6
        RETURNING version, updated_at`,
		c.CardHolder, c.Balance, string(c.Status), time.Now().UTC(), cardID, c.Version).Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrConcurrentModification
	}
	if err != nil {
		return Card{}, mapPgError(err)
	}
	t.cards[c.ID] = c
	return c, nil
}

func (t *postgresTx) AppendTransfer(ctx context.Context, rec Transfer) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}
	from, err := uuid.Parse(rec.FromCardID)
	if err != nil {
		return err
	}
	to, err := uuid.Parse(rec.ToCardID)
	if err != nil {
		return err
	}
	initiator, err := uuid.Parse(rec.InitiatorID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO card_transfers (id, from_card_id, to_card_id, amount, description, initiator_id, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, id, from, to, rec.Amount, rec.Description, initiator, rec.Status, rec.CreatedAt.UTC())
	return mapPgError(err)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Card, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c                Card
		id, owner        uuid.UUID
		status           string
		expiresOn        time.Time
		created, updated time.Time
	)
	if err := row.Scan(&id, &owner, &c.CardHolder, &c.NumberCipher, &c.NumberFingerprint, &c.CVVCipher,
		&expiresOn, &c.Balance, &status, &c.Version, &created, &updated); err != nil {
		return Card{}, err
	}
	c.ID = id.String()
	c.OwnerID = owner.String()
	c.Status = Status(status)
	c.ExpiresOn = DateOf(expiresOn)
	c.CreatedAt = created.UTC()
	c.UpdatedAt = updated.UTC()
	return c, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == "cards_number_fingerprint_key" {
				return ErrDuplicateCardNumber
			}
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}
