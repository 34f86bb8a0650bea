package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/logging"
	"github.com/congo-pay/bankcards/internal/notification"
)

// Expirer transitions a single card to EXPIRED when its date has passed.
type Expirer interface {
	Expire(ctx context.Context, cardID string, now time.Time) (card.Card, bool, error)
}

// Lister finds the cards a sweep should visit.
type Lister interface {
	ListExpiring(ctx context.Context, now time.Time) ([]card.Card, error)
}

// Sweeper expires cards whose expiration date lies before today.
type Sweeper struct {
	cards    Lister
	expirer  Expirer
	notifier notification.Notifier
	logger   *slog.Logger
}

// New builds a sweeper. The lifecycle manager is the only writer it uses.
func New(cards Lister, expirer Expirer, notifier notification.Notifier, logger *slog.Logger) *Sweeper {
	return &Sweeper{cards: cards, expirer: expirer, notifier: notifier, logger: logging.OrDiscard(logger)}
}

// Run expires every due card and returns how many changed. A failing card
// is logged and skipped. Run returns an error only when listing fails or
// every visited card failed for a reason other than a business outcome.
func (s *Sweeper) Run(ctx context.Context, now time.Time) (int, error) {
	due, err := s.cards.ListExpiring(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expiring cards: %w", err)
	}

	var (
		transitioned int
		failures     []error
	)
	for _, c := range due {
		if err := ctx.Err(); err != nil {
			return transitioned, err
		}
		out, changed, err := s.expirer.Expire(ctx, c.ID, now)
		switch {
		case errors.Is(err, card.ErrNotFound):
			s.logger.Info("card vanished before sweep", "card_id", c.ID)
			continue
		case err != nil:
			s.logger.Error("expire card failed", "card_id", c.ID, "error", err)
			failures = append(failures, fmt.Errorf("card %s: %w", c.ID, err))
			continue
		case !changed:
			continue
		}
		transitioned++
		notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
			Kind:        notification.KindCardExpired,
			Destination: out.OwnerID,
			CardID:      out.ID,
			Body:        fmt.Sprintf("Card %s expired on %s", out.ID, out.ExpiresOn.Format(time.DateOnly)),
		})
	}

	s.logger.Info("expiration sweep finished", "due", len(due), "transitioned", transitioned, "failed", len(failures))
	if len(due) > 0 && len(failures) == len(due) {
		return transitioned, errors.Join(failures...)
	}
	return transitioned, nil
}

// NewScheduler returns a UTC cron scheduler that recovers panicking jobs and
// skips a tick while the previous run of the same job is still going.
func NewScheduler(logger *slog.Logger) *cron.Cron {
	l := cronLogger{logger: logging.OrDiscard(logger).With("component", "scheduler")}
	return cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// cronLogger adapts slog to cron.Logger. Routine cron chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron "+msg, append(keysAndValues, "error", err)...)
}

// Schedule registers the sweeper on c under the cron spec. Each tick runs
// with the time supplied by now.
func Schedule(c *cron.Cron, spec string, s *Sweeper, now func() time.Time) (cron.EntryID, error) {
	if now == nil {
		now = time.Now
	}
	id, err := c.AddFunc(spec, func() {
		if _, err := s.Run(context.Background(), now()); err != nil {
			s.logger.Error("expiration sweep failed", "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule expiration sweep %q: %w", spec, err)
	}
	return id, nil
}
