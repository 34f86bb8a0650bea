package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/transfer"
)

// RegisterCardRoutes wires the card endpoints available to every caller.
func RegisterCardRoutes(r fiber.Router, cards *card.Handler, transfers *transfer.Handler, guards []fiber.Handler) {
	g := r.Group("/cards")
	g.Get("/my", cards.Mine)
	g.Post("/transfer", withGuards(guards, transfers.Create)...)
	g.Get("/:cardId", cards.Get)
	g.Post("/:cardId/block", cards.Block)
	g.Post("/:cardId/unblock", cards.Unblock)
	g.Get("/:cardId/transfers", transfers.History)
}
