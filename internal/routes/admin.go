package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/middleware"
	"github.com/congo-pay/bankcards/internal/transfer"
)

// RegisterAdminRoutes wires the ADMIN-only card endpoints.
func RegisterAdminRoutes(r fiber.Router, cards *card.Handler, transfers *transfer.Handler, guards []fiber.Handler) {
	g := r.Group("/admin/cards", middleware.RequireRole(card.RoleAdmin))
	g.Get("/", cards.List)
	g.Post("/", cards.Issue)
	g.Post("/transfer", withGuards(guards, transfers.AdminCreate)...)
	g.Patch("/:cardId/status", cards.SetStatus)
	g.Delete("/:cardId", cards.Delete)
}
