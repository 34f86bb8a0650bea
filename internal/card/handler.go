package card

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// CallerLocalsKey is the fiber locals key holding the authenticated Caller.
const CallerLocalsKey = "caller"

const dateLayout = "2006-01-02"

// minorUnitExponent places minor currency units two digits after the point.
const minorUnitExponent = -2

// Handler exposes card HTTP endpoints.
type Handler struct {
	manager *Manager
	vault   *Vault
}

// NewHandler builds a card HTTP handler.
func NewHandler(manager *Manager, vault *Vault) *Handler {
	return &Handler{manager: manager, vault: vault}
}

type issueRequest struct {
	OwnerID        string `json:"owner_id"`
	CardHolder     string `json:"card_holder"`
	ExpirationDate string `json:"expiration_date"`
	InitialBalance int64  `json:"initial_balance"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type cardResponse struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	MaskedNumber   string `json:"masked_number"`
	CardHolder     string `json:"card_holder"`
	ExpirationDate string `json:"expiration_date"`
	Status         Status `json:"status"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// Mine lists the caller's cards.
func (h *Handler) Mine(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	cards, err := h.manager.ListMine(c.UserContext(), caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respondList(c, cards)
}

// List returns every card to an admin.
func (h *Handler) List(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	cards, err := h.manager.ListAll(c.UserContext(), caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respondList(c, cards)
}

// Get returns one card to its owner or an admin.
func (h *Handler) Get(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	card, err := h.manager.Get(c.UserContext(), c.Params("cardId"), caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respond(c, http.StatusOK, card)
}

// Issue creates a card for an existing user.
func (h *Handler) Issue(c *fiber.Ctx) error {
	var req issueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var expiresOn time.Time
	if req.ExpirationDate != "" {
		parsed, err := time.Parse(dateLayout, req.ExpirationDate)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "expiration_date must be YYYY-MM-DD")
		}
		expiresOn = parsed
	}
	card, err := h.vault.Issue(c.UserContext(), IssueInput{
		CardHolder:     req.CardHolder,
		ExpiresOn:      expiresOn,
		InitialBalance: req.InitialBalance,
		OwnerID:        req.OwnerID,
	})
	if err != nil {
		return HTTPError(err)
	}
	return h.respond(c, http.StatusCreated, card)
}

// Block blocks a card.
func (h *Handler) Block(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	card, err := h.manager.Block(c.UserContext(), c.Params("cardId"), caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respond(c, http.StatusOK, card)
}

// Unblock unblocks a card.
func (h *Handler) Unblock(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	card, err := h.manager.Unblock(c.UserContext(), c.Params("cardId"), caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respond(c, http.StatusOK, card)
}

// SetStatus applies an administrative status override. The status comes
// from the ?status= query parameter or a JSON body.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	raw := c.Query("status")
	if raw == "" {
		var req statusRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		raw = req.Status
	}
	status, err := ParseStatus(raw)
	if err != nil {
		return HTTPError(err)
	}
	card, err := h.manager.SetStatus(c.UserContext(), c.Params("cardId"), status, caller)
	if err != nil {
		return HTTPError(err)
	}
	return h.respond(c, http.StatusOK, card)
}

// Delete removes a card.
func (h *Handler) Delete(c *fiber.Ctx) error {
	caller, err := CallerFrom(c)
	if err != nil {
		return err
	}
	if err := h.manager.Delete(c.UserContext(), c.Params("cardId"), caller); err != nil {
		return HTTPError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) respond(c *fiber.Ctx, status int, card Card) error {
	view, err := h.view(card)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "render card")
	}
	return c.Status(status).JSON(view)
}

func (h *Handler) respondList(c *fiber.Ctx, cards []Card) error {
	views := make([]cardResponse, 0, len(cards))
	for _, card := range cards {
		view, err := h.view(card)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "render card")
		}
		views = append(views, view)
	}
	return c.Status(http.StatusOK).JSON(views)
}

func (h *Handler) view(card Card) (cardResponse, error) {
	masked, err := h.vault.MaskedNumber(card)
	if err != nil {
		return cardResponse{}, err
	}
	return cardResponse{
		ID:             card.ID,
		OwnerID:        card.OwnerID,
		MaskedNumber:   masked,
		CardHolder:     card.CardHolder,
		ExpirationDate: card.ExpiresOn.Format(dateLayout),
		Status:         card.Status,
		Balance:        card.Balance,
		BalanceDisplay: FormatAmount(card.Balance),
	}, nil
}

// CallerFrom returns the authenticated caller stored by the auth middleware.
func CallerFrom(c *fiber.Ctx) (Caller, error) {
	caller, ok := c.Locals(CallerLocalsKey).(Caller)
	if !ok || caller.ID == "" {
		return Caller{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return caller, nil
}

// FormatAmount renders minor units as a fixed two-decimal string.
func FormatAmount(minor int64) string {
	return decimal.New(minor, minorUnitExponent).StringFixed(2)
}

// HTTPError maps a domain error to a fiber error.
func HTTPError(err error) error {
	return fiber.NewError(StatusCode(err), err.Error())
}

// StatusCode maps domain errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrCardNotActive),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrDuplicateCardNumber):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTransfer),
		errors.Is(err, ErrInvalidBalance),
		errors.Is(err, ErrInvalidExpiration),
		errors.Is(err, ErrInvalidCardHolder),
		errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, ErrGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
