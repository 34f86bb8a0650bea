package card

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/bankcards/internal/logging"
)

const (
	defaultBIN          = "400000"
	defaultAttempts     = 5
	defaultValidityYear = 3
)

// OwnerDirectory answers whether a user id refers to an existing user.
type OwnerDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// VaultConfig tunes card issuance. Zero values select defaults.
type VaultConfig struct {
	BIN      string
	Attempts int
	Now      func() time.Time
	Random   io.Reader
}

// Vault issues cards with unique numbers and keeps their secrets encrypted.
type Vault struct {
	store    Store
	owners   OwnerDirectory
	cipher   *Cipher
	bin      string
	attempts int
	now      func() time.Time
	random   io.Reader
	logger   *slog.Logger
}

// NewVault builds a card vault.
func NewVault(store Store, owners OwnerDirectory, cipher *Cipher, cfg VaultConfig, logger *slog.Logger) *Vault {
	v := &Vault{
		store:    store,
		owners:   owners,
		cipher:   cipher,
		bin:      cfg.BIN,
		attempts: cfg.Attempts,
		now:      cfg.Now,
		random:   cfg.Random,
		logger:   logging.OrDiscard(logger),
	}
	if v.bin == "" {
		v.bin = defaultBIN
	}
	if v.attempts <= 0 {
		v.attempts = defaultAttempts
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.random == nil {
		v.random = rand.Reader
	}
	return v
}

// IssueInput captures data required to issue a card.
type IssueInput struct {
	CardHolder     string
	ExpiresOn      time.Time
	InitialBalance int64
	OwnerID        string
}

// Issue creates an ACTIVE card for an existing owner. A zero ExpiresOn
// defaults to three years from today.
func (v *Vault) Issue(ctx context.Context, in IssueInput) (Card, error) {
	holder := strings.TrimSpace(in.CardHolder)
	if holder == "" {
		return Card{}, ErrInvalidCardHolder
	}
	if in.InitialBalance < 0 {
		return Card{}, ErrInvalidBalance
	}

	now := v.now().UTC()
	today := DateOf(now)
	expiresOn := DateOf(in.ExpiresOn)
	if in.ExpiresOn.IsZero() {
		expiresOn = today.AddDate(defaultValidityYear, 0, 0)
	}
	if expiresOn.Before(today) {
		return Card{}, ErrInvalidExpiration
	}

	exists, err := v.owners.Exists(ctx, in.OwnerID)
	if err != nil {
		return Card{}, fmt.Errorf("lookup owner: %w", err)
	}
	if !exists {
		return Card{}, &NotFoundError{Resource: "user", ID: in.OwnerID}
	}

	for attempt := 1; attempt <= v.attempts; attempt++ {
		c, err := v.candidate(ctx, holder, expiresOn, in.InitialBalance, in.OwnerID, now)
		if errors.Is(err, ErrDuplicateCardNumber) {
			v.logger.Warn("card number collision", "attempt", attempt, "owner_id", in.OwnerID)
			continue
		}
		if err != nil {
			return Card{}, err
		}
		v.logger.Info("card issued", "card_id", c.ID, "owner_id", c.OwnerID, "attempts", attempt)
		return c, nil
	}
	return Card{}, fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, v.attempts)
}

func (v *Vault) candidate(ctx context.Context, holder string, expiresOn time.Time, balance int64, ownerID string, now time.Time) (Card, error) {
	number, err := generateNumber(v.random, v.bin)
	if err != nil {
		return Card{}, err
	}
	if !ValidNumber(number) {
		return Card{}, fmt.Errorf("generated card number for bin %q is not a valid card number", v.bin)
	}
	fingerprint := v.cipher.Fingerprint(number)
	taken, err := v.store.ExistsByNumber(ctx, fingerprint)
	if err != nil {
		return Card{}, fmt.Errorf("check card number: %w", err)
	}
	if taken {
		return Card{}, ErrDuplicateCardNumber
	}

	cvv, err := generateCVV(v.random)
	if err != nil {
		return Card{}, err
	}
	numberCipher, err := v.cipher.Seal(number)
	if err != nil {
		return Card{}, err
	}
	cvvCipher, err := v.cipher.Seal(cvv)
	if err != nil {
		return Card{}, err
	}

	c := Card{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		CardHolder:        holder,
		NumberCipher:      numberCipher,
		NumberFingerprint: fingerprint,
		CVVCipher:         cvvCipher,
		ExpiresOn:         expiresOn,
		Balance:           balance,
		Status:            StatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := v.store.Create(ctx, c); err != nil {
		return Card{}, err
	}
	return c, nil
}

// MaskedNumber decrypts the stored number and returns its display form.
func (v *Vault) MaskedNumber(c Card) (string, error) {
	number, err := v.cipher.Open(c.NumberCipher)
	if err != nil {
		return "", err
	}
	return Mask(number), nil
}
