package card

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

type ownerSet map[string]bool

func (o ownerSet) Exists(_ context.Context, id string) (bool, error) { return o[id], nil }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// day is the fixed "today" used across tests.
var day = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey)
	require.NoError(t, err)
	return c
}

type fixture struct {
	store   Store
	vault   *Vault
	manager *Manager
	owner   string
	other   string
	admin   Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	owner, other := uuid.NewString(), uuid.NewString()
	vault := NewVault(store, ownerSet{owner: true, other: true}, newTestCipher(t), VaultConfig{Now: fixedClock(day)}, nil)
	return &fixture{
		store:   store,
		vault:   vault,
		manager: NewManager(store, fixedClock(day), nil),
		owner:   owner,
		other:   other,
		admin:   Caller{ID: uuid.NewString(), Role: RoleAdmin},
	}
}

func (f *fixture) issue(t *testing.T, ownerID string, balance int64) Card {
	t.Helper()
	c, err := f.vault.Issue(context.Background(), IssueInput{
		CardHolder:     "JANE DOE",
		ExpiresOn:      day.AddDate(1, 0, 0),
		InitialBalance: balance,
		OwnerID:        ownerID,
	})
	require.NoError(t, err)
	return c
}

// force rewrites a stored card, bypassing the lifecycle rules.
func (f *fixture) force(t *testing.T, id string, mutate func(*Card)) Card {
	t.Helper()
	ctx := context.Background()
	var out Card
	err := f.store.WithLocked(ctx, []string{id}, func(tx Tx) error {
		c, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		mutate(&c)
		out, err = tx.Put(ctx, c)
		return err
	})
	require.NoError(t, err)
	return out
}
