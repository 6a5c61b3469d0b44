package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/service"
)

// Admin surface: activity-rule management, loyalty settings and manual
// credits. Routes sit behind the admin allow-list middleware.

func (h *Handler) ListActivityRules(c *fiber.Ctx) error {
	rules, err := h.activitySvc.ListRules(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rules": rules})
}

func (h *Handler) UpsertActivityRule(c *fiber.Ctx) error {
	var rule model.ActivityRule
	if err := c.BodyParser(&rule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	if err := h.activitySvc.UpsertRule(c.Context(), &rule); err != nil {
		return respondError(c, err)
	}
	return c.JSON(rule)
}

// GetBonusConfig returns the currently effective propagation parameters.
func (h *Handler) GetBonusConfig(c *fiber.Ctx) error {
	cfg := h.bonusSvc.Config()
	return c.JSON(fiber.Map{
		"bonus_percents": cfg.BonusPercents,
		"min_thresholds": cfg.MinThresholds,
		"max_depth":      cfg.MaxDepth,
	})
}

type SetSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetLoyaltySetting stores one override and reloads the bonus engine so it
// takes effect immediately.
func (h *Handler) SetLoyaltySetting(settings service.SettingsStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req SetSettingRequest
		if err := c.BodyParser(&req); err != nil || req.Key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Неверный формат запроса",
			})
		}

		if err := settings.SetSetting(c.Context(), req.Key, req.Value); err != nil {
			return respondError(c, err)
		}
		if err := h.bonusSvc.Reload(c.Context()); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

type ManualCreditRequest struct {
	AccountID   int64   `json:"account_id"`
	Points      float64 `json:"points"`
	Description string  `json:"description"`
}

// ManualCredit is the operator adjustment path (MANUAL transaction type).
func (h *Handler) ManualCredit(c *fiber.Ctx) error {
	var req ManualCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	var desc *string
	if req.Description != "" {
		desc = &req.Description
	}
	t, err := h.ledgerSvc.AddPoints(c.Context(), service.AddPointsInput{
		AccountID:   req.AccountID,
		Points:      req.Points,
		Type:        model.TransactionTypeManual,
		Description: desc,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(t)
}

// GetAccountBalance lets operators inspect any account.
func (h *Handler) GetAccountBalance(c *fiber.Ctx) error {
	accountID, err := strconv.ParseInt(c.Params("account_id"), 10, 64)
	if err != nil || accountID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный ID аккаунта",
		})
	}

	balance, err := h.ledgerSvc.GetBalance(c.Context(), accountID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(balance)
}
