package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/service"
)

type Handler struct {
	cfg         *config.Config
	ledgerSvc   *service.LedgerService
	activitySvc *service.ActivityService
	referralSvc *service.ReferralService
	bonusSvc    *service.BonusService
	codeSvc     *service.CodeService
	botUsername string
}

func New(
	cfg *config.Config,
	ledgerSvc *service.LedgerService,
	activitySvc *service.ActivityService,
	referralSvc *service.ReferralService,
	bonusSvc *service.BonusService,
	codeSvc *service.CodeService,
	botUsername string,
) *Handler {
	return &Handler{
		cfg:         cfg,
		ledgerSvc:   ledgerSvc,
		activitySvc: activitySvc,
		referralSvc: referralSvc,
		bonusSvc:    bonusSvc,
		codeSvc:     codeSvc,
		botUsername: botUsername,
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// respondError maps the apperr taxonomy onto HTTP statuses. Expected
// outcomes keep their user-facing message; Service errors are masked.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Внутренняя ошибка сервиса"

	switch apperr.KindOf(err) {
	case apperr.Validation:
		status, message = fiber.StatusBadRequest, err.Error()
	case apperr.NotFound:
		status, message = fiber.StatusNotFound, err.Error()
	case apperr.BusinessLogic:
		status, message = fiber.StatusConflict, err.Error()
	case apperr.InsufficientBalance:
		status, message = fiber.StatusPaymentRequired, err.Error()
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
