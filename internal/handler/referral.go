package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/middleware"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

type ApplyReferralRequest struct {
	Code string `json:"code"`
}

// GetReferralCode returns the caller's invite code, generating it on first
// request. Idempotent.
func (h *Handler) GetReferralCode(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	code, err := h.codeSvc.GenerateCode(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(code)
}

func (h *Handler) GetReferralLink(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	link, err := h.codeSvc.ReferralLink(c.Context(), userID, h.botUsername)
	if err != nil {
		return respondError(c, err)
	}

	code, err := h.codeSvc.GenerateCode(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"link": link,
		"code": code.Code,
	})
}

// ApplyReferralCode attaches the caller under the code's owner, once.
func (h *Handler) ApplyReferralCode(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	var req ApplyReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	referrerID, err := h.codeSvc.ResolveCode(c.Context(), req.Code)
	if err != nil {
		return respondError(c, err)
	}

	if _, err := h.referralSvc.AddEdge(c.Context(), userID, referrerID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Реферальный код применён!",
	})
}

func (h *Handler) GetReferralStats(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	stats, err := h.referralSvc.GetStats(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(stats)
}

func (h *Handler) GetReferralTree(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Необходима авторизация",
		})
	}

	tree, err := h.referralSvc.GetSubtree(c.Context(), userID, model.MaxReferralDepth)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(tree)
}
