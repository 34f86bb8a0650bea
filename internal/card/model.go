package card

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a card. It is the only source of truth
// for whether a card is blocked.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusExpired Status = "EXPIRED"
)

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusBlocked, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Role gates permission checks.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Caller is an already-authenticated principal acting on cards.
type Caller struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// Card is a payment card record. Balance is in minor currency units.
type Card struct {
	ID                string
	OwnerID           string
	CardHolder        string
	NumberCipher      []byte
	NumberFingerprint string
	CVVCipher         []byte
	ExpiresOn         time.Time
	Balance           int64
	Status            Status
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DateExpired reports whether the expiration date is strictly before the
// calendar day of now.
func (c Card) DateExpired(now time.Time) bool {
	return DateOf(c.ExpiresOn).Before(DateOf(now))
}

// Transferable reports whether the card may take part in a transfer.
func (c Card) Transferable(now time.Time) bool {
	return c.Status == StatusActive && !c.DateExpired(now)
}

// TransferStatusSuccess is the outcome recorded for a completed transfer.
const TransferStatusSuccess = "SUCCESS"

// Transfer is an append-only record of money moved between two cards.
type Transfer struct {
	ID          string
	FromCardID  string
	ToCardID    string
	Amount      int64
	Description string
	InitiatorID string
	Status      string
	CreatedAt   time.Time
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
