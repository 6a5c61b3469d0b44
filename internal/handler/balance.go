package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/middleware"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

// GetBalance returns the caller's balance, creating a zero one lazily.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	balance, err := h.ledgerSvc.GetBalance(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(balance)
}

// GetTransactionHistory returns one ledger page with summary aggregates,
// filterable by type, activity type and time range.
func (h *Handler) GetTransactionHistory(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	filter := model.TransactionFilter{
		AccountID: userID,
		Limit:     limit,
		Offset:    offset,
	}
	if raw := c.Query("type"); raw != "" {
		t := model.TransactionType(raw)
		filter.Type = &t
	}
	if raw := c.Query("activity_type"); raw != "" {
		filter.ActivityType = &raw
	}
	if raw := c.Query("from"); raw != "" {
		if from, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &to
		}
	}

	page, err := h.ledgerSvc.GetTransactionHistory(c.Context(), filter)
	if err != nil {
		return respondError(c, err)
	}

	// Partner names are a read-side join, composed here rather than inside
	// the ledger.
	if err := h.ledgerSvc.AttachPartnerNames(c.Context(), page.Items); err != nil {
		return respondError(c, err)
	}

	return c.JSON(page)
}

type SpendRequest struct {
	Points      float64 `json:"points"`
	Description string  `json:"description"`
}

// SpendPoints debits the caller's available balance.
func (h *Handler) SpendPoints(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	var req SpendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	t, err := h.ledgerSvc.SpendPoints(c.Context(), userID, req.Points, req.Description)
	if err != nil {
		return respondError(c, err)
	}

	balance, err := h.ledgerSvc.GetBalance(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"transaction": t,
		"balance":     balance,
	})
}
