package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/bankcards/internal/card"
)

func TestProvisionAndResolveCaller(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Provision(ctx, " alice ", card.RoleAdmin)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if user.Username != "alice" || !user.Active {
		t.Fatalf("unexpected user: %+v", user)
	}

	caller, err := svc.Caller(ctx, user.ID)
	if err != nil {
		t.Fatalf("caller: %v", err)
	}
	if caller.ID != user.ID || !caller.IsAdmin() {
		t.Fatalf("expected admin caller, got %+v", caller)
	}

	ok, err := svc.Exists(ctx, user.ID)
	if err != nil || !ok {
		t.Fatalf("expected user to exist, got %v %v", ok, err)
	}
}

func TestProvisionValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "  ", card.RoleUser); err == nil {
		t.Fatalf("expected error for empty username")
	}
	if _, err := svc.Provision(ctx, "bob", card.Role("ROOT")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestUnknownAndInactiveUsers(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	ok, err := svc.Exists(ctx, uuid.NewString())
	if err != nil || ok {
		t.Fatalf("expected unknown user to be absent, got %v %v", ok, err)
	}
	if _, err := svc.Caller(ctx, uuid.NewString()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	dormant := User{ID: uuid.NewString(), Username: "dormant", Role: card.RoleUser}
	if err := repo.Create(ctx, dormant); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := svc.Exists(ctx, dormant.ID); ok {
		t.Fatalf("inactive user must not own new cards")
	}
	if _, err := svc.Caller(ctx, dormant.ID); !errors.Is(err, ErrInactiveUser) {
		t.Fatalf("expected ErrInactiveUser, got %v", err)
	}
}
