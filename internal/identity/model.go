package identity

import (
	"errors"
	"time"

	"github.com/congo-pay/bankcards/internal/card"
)

// ErrUserNotFound is returned when no user has the given id.
var ErrUserNotFound = errors.New("user not found")

// User is a card owner or operator known to the directory.
type User struct {
	ID        string
	Username  string
	Role      card.Role
	Active    bool
	CreatedAt time.Time
}
