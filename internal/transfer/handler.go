package transfer

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankcards/internal/card"
)

// Handler exposes transfer endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a transfer handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type transferRequest struct {
	FromCardID  string `json:"from_card_id"`
	ToCardID    string `json:"to_card_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type transferResponse struct {
	Status        string    `json:"status"`
	TransferID    string    `json:"transfer_id"`
	FromCardID    string    `json:"from_card_id"`
	ToCardID      string    `json:"to_card_id"`
	Amount        int64     `json:"amount"`
	AmountDisplay string    `json:"amount_display"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// Create moves money between two of the caller's own cards.
func (h *Handler) Create(c *fiber.Ctx) error {
	return h.transfer(c, false)
}

// AdminCreate moves money between any two cards.
func (h *Handler) AdminCreate(c *fiber.Ctx) error {
	return h.transfer(c, true)
}

func (h *Handler) transfer(c *fiber.Ctx, admin bool) error {
	caller, err := card.CallerFrom(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	record, err := h.engine.Transfer(c.UserContext(), Input{
		FromCardID:     req.FromCardID,
		ToCardID:       req.ToCardID,
		Amount:         req.Amount,
		Description:    req.Description,
		Initiator:      caller,
		AdminInitiated: admin,
	})
	if err != nil {
		return card.HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(record))
}

// History lists the transfers touching a card.
func (h *Handler) History(c *fiber.Ctx) error {
	caller, err := card.CallerFrom(c)
	if err != nil {
		return err
	}
	records, err := h.engine.History(c.UserContext(), c.Params("cardId"), caller)
	if err != nil {
		return card.HTTPError(err)
	}
	out := make([]transferResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(out)
}

func toResponse(r card.Transfer) transferResponse {
	return transferResponse{
		Status:        r.Status,
		TransferID:    r.ID,
		FromCardID:    r.FromCardID,
		ToCardID:      r.ToCardID,
		Amount:        r.Amount,
		AmountDisplay: card.FormatAmount(r.Amount),
		Description:   r.Description,
		Timestamp:     r.CreatedAt,
	}
}
