package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/middleware"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

type RecordActivityRequest struct {
	ActivityType string   `json:"activity_type"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	PartnerID    *int64   `json:"partner_id"`
}

// RecordActivity credits points for a rule-gated user action. Geo check-ins
// carry coordinates and the target partner.
func (h *Handler) RecordActivity(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	var req RecordActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}
	if req.ActivityType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Укажите тип активности",
		})
	}

	actx := &model.ActivityContext{
		Lat:       req.Lat,
		Lon:       req.Lon,
		PartnerID: req.PartnerID,
	}

	t, err := h.activitySvc.RecordActivity(c.Context(), userID, req.ActivityType, actx)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"transaction": t,
		"points":      t.Points,
	})
}
