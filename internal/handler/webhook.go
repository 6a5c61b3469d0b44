package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PurchaseWebhookRequest struct {
	TransactionID string  `json:"transaction_id"`
	AccountID     int64   `json:"account_id"`
	Amount        float64 `json:"amount"`
}

// PurchaseWebhook is called by the checkout flow after a purchase is
// finalized elsewhere. Propagation is idempotent per transaction id, so the
// caller may safely retry on transport failures.
func (h *Handler) PurchaseWebhook(c *fiber.Ctx) error {
	var req PurchaseWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	sourceTxID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный ID транзакции",
		})
	}
	if req.AccountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Не указан аккаунт",
		})
	}

	summary, err := h.bonusSvc.OnTransaction(c.Context(), sourceTxID, req.AccountID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(summary)
}
