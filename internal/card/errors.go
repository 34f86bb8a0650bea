package card

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadyBlocked         = errors.New("card already blocked")
	ErrNotBlocked             = errors.New("card not blocked")
	ErrCardExpired            = errors.New("card expired")
	ErrCardNotActive          = errors.New("card not active")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTransfer        = errors.New("invalid transfer")
	ErrDuplicateCardNumber    = errors.New("duplicate card number")
	ErrGenerationExhausted    = errors.New("card number generation exhausted")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidBalance         = errors.New("initial balance must not be negative")
	ErrInvalidExpiration      = errors.New("expiration date is in the past")
	ErrInvalidCardHolder      = errors.New("card holder is required")
	ErrInvalidStatus          = errors.New("invalid status")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PermissionError reports an ownership or role violation with both ids
// for auditing.
type PermissionError struct {
	Action   string
	CardID   string
	OwnerID  string
	CallerID string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("no permission to %s card %s: card owner id %s, caller id %s", e.Action, e.CardID, e.OwnerID, e.CallerID)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// StateError is an illegal lifecycle transition. Reason is one of
// ErrAlreadyBlocked, ErrNotBlocked or ErrCardExpired.
type StateError struct {
	CardID string
	Status Status
	Reason error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("card %s (%s): %v", e.CardID, e.Status, e.Reason)
}

func (e *StateError) Unwrap() []error { return []error{ErrInvalidStateTransition, e.Reason} }

// NotActiveError is a transfer attempted on a card that cannot move money.
type NotActiveError struct {
	CardID string
	Status Status
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("card %s is not active (status %s)", e.CardID, e.Status)
}

func (e *NotActiveError) Is(target error) bool { return target == ErrCardNotActive }

// InsufficientFundsError carries the source balance at decision time.
type InsufficientFundsError struct {
	CardID  string
	Balance int64
	Amount  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("card %s has balance %d, transfer needs %d", e.CardID, e.Balance, e.Amount)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

func notFound(id string) error { return &NotFoundError{Resource: "card", ID: id} }
