package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/notification"
)

var today = time.Date(2026, time.September, 1, 2, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func seed(t *testing.T, store card.Store, expiresOn time.Time, status card.Status) card.Card {
	t.Helper()
	c := card.Card{
		ID:                uuid.NewString(),
		OwnerID:           uuid.NewString(),
		NumberFingerprint: uuid.NewString(),
		ExpiresOn:         expiresOn,
		Status:            status,
		Version:           1,
	}
	require.NoError(t, store.Create(context.Background(), c))
	return c
}

func statusOf(t *testing.T, store card.Store, id string) card.Status {
	t.Helper()
	c, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return c.Status
}

func TestRunIsIdempotent(t *testing.T) {
	store := card.NewMemoryStore()
	notifier := &recordingNotifier{}
	s := New(store, card.NewManager(store, nil, nil), notifier, nil)
	yesterday := card.DateOf(today).AddDate(0, 0, -1)
	d := seed(t, store, yesterday, card.StatusActive)

	n, err := s.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, card.StatusExpired, statusOf(t, store, d.ID))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, notification.KindCardExpired, notifier.sent[0].Kind)
	require.Equal(t, d.OwnerID, notifier.sent[0].Destination)

	n, err = s.Run(context.Background(), today)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, notifier.sent, 1)
}

func TestRunLeavesOtherCardsAlone(t *testing.T) {
	store := card.NewMemoryStore()
	s := New(store, card.NewManager(store, nil, nil), nil, nil)
	yesterday := card.DateOf(today).AddDate(0, 0, -1)

	blockedDue := seed(t, store, yesterday, card.StatusBlocked)
	expiresToday := seed(t, store, card.DateOf(today), card.StatusActive)
	future := seed(t, store, today.AddDate(1, 0, 0), card.StatusBlocked)
	already := seed(t, store, yesterday.AddDate(-1, 0, 0), card.StatusExpired)

	n, err := s.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, card.StatusExpired, statusOf(t, store, blockedDue.ID))
	require.Equal(t, card.StatusActive, statusOf(t, store, expiresToday.ID))
	require.Equal(t, card.StatusBlocked, statusOf(t, store, future.ID))
	require.Equal(t, card.StatusExpired, statusOf(t, store, already.ID))
}

type flakyExpirer struct {
	fail map[string]error
	next Expirer
}

func (f flakyExpirer) Expire(ctx context.Context, id string, now time.Time) (card.Card, bool, error) {
	if err, ok := f.fail[id]; ok {
		return card.Card{}, false, err
	}
	return f.next.Expire(ctx, id, now)
}

func TestRunContinuesPastFailures(t *testing.T) {
	store := card.NewMemoryStore()
	yesterday := card.DateOf(today).AddDate(0, 0, -1)
	bad := seed(t, store, yesterday, card.StatusActive)
	good := seed(t, store, yesterday, card.StatusActive)

	exp := flakyExpirer{
		fail: map[string]error{bad.ID: errors.New("connection reset")},
		next: card.NewManager(store, nil, nil),
	}
	n, err := New(store, exp, nil, nil).Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, card.StatusExpired, statusOf(t, store, good.ID))
	require.Equal(t, card.StatusActive, statusOf(t, store, bad.ID))
}

func TestRunReportsTotalFailure(t *testing.T) {
	store := card.NewMemoryStore()
	yesterday := card.DateOf(today).AddDate(0, 0, -1)
	a := seed(t, store, yesterday, card.StatusActive)
	b := seed(t, store, yesterday, card.StatusActive)
	down := errors.New("store unavailable")

	exp := flakyExpirer{fail: map[string]error{a.ID: down, b.ID: down}}
	n, err := New(store, exp, nil, nil).Run(context.Background(), today)
	require.ErrorIs(t, err, down)
	require.Zero(t, n)
}

func TestRunSkipsVanishedCards(t *testing.T) {
	store := card.NewMemoryStore()
	yesterday := card.DateOf(today).AddDate(0, 0, -1)
	gone := seed(t, store, yesterday, card.StatusActive)

	exp := flakyExpirer{fail: map[string]error{gone.ID: &card.NotFoundError{Resource: "card", ID: gone.ID}}}
	n, err := New(store, exp, nil, nil).Run(context.Background(), today)
	require.NoError(t, err)
	require.Zero(t, n)
}

type brokenLister struct{}

func (brokenLister) ListExpiring(context.Context, time.Time) ([]card.Card, error) {
	return nil, errors.New("db down")
}

func TestRunFailsWhenListingFails(t *testing.T) {
	_, err := New(brokenLister{}, nil, nil, nil).Run(context.Background(), today)
	require.Error(t, err)
}

func TestSchedule(t *testing.T) {
	store := card.NewMemoryStore()
	s := New(store, card.NewManager(store, nil, nil), nil, nil)
	c := cron.New()

	id, err := Schedule(c, "@daily", s, func() time.Time { return today })
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Len(t, c.Entries(), 1)

	_, err = Schedule(c, "not a cron spec", s, nil)
	require.Error(t, err)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	c := NewScheduler(nil)
	var (
		mu      sync.Mutex
		runs    int
		started = make(chan struct{})
		release = make(chan struct{})
	)
	id, err := c.AddFunc("@every 1h", func() {
		mu.Lock()
		runs++
		mu.Unlock()
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)
	job := c.Entry(id).WrappedJob

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	// A second tick while the first run holds the slot is dropped.
	job.Run()
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, runs)
}
