package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
)

type ActivityRepo interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	EnsureBalance(ctx context.Context, accountID int64) (*model.Balance, error)
	LockBalance(ctx context.Context, tx *sqlx.Tx, accountID int64) (*model.Balance, error)
	GetActivityRule(ctx context.Context, activityType string) (*model.ActivityRule, error)
	ListActivityRules(ctx context.Context) ([]model.ActivityRule, error)
	UpsertActivityRule(ctx context.Context, rule *model.ActivityRule) error
	LastActivityAt(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string) (*time.Time, error)
	CountActivitiesSince(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string, since time.Time) (int, error)
	InsertActivityLog(ctx context.Context, q sqlx.ExtContext, entry *model.ActivityLog) error
	GetPartner(ctx context.Context, id int64) (*model.Partner, error)
}

// ActivityService is the policy gate in front of activity point credits:
// active rule, cooldown, daily cap and optional geo check, in that order.
type ActivityService struct {
	repo   ActivityRepo
	ledger *LedgerService
	cfg    config.LoyaltyConfig

	now func() time.Time
}

func NewActivityService(repo ActivityRepo, ledger *LedgerService, cfg config.LoyaltyConfig) *ActivityService {
	return &ActivityService{
		repo:   repo,
		ledger: ledger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// RecordActivity credits rule.Points when every gate passes. The credit and
// the activity-log entry commit as one unit, so a crash cannot leave a credit
// the rate limiter does not see.
func (s *ActivityService) RecordActivity(ctx context.Context, accountID int64, activityType string, actx *model.ActivityContext) (*model.Transaction, error) {
	rule, err := s.repo.GetActivityRule(ctx, activityType)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, apperr.Validationf("неизвестный тип активности: %s", activityType)
		}
		return nil, apperr.Wrap(err, "get activity rule")
	}
	if !rule.IsActive {
		return nil, apperr.Validationf("активность %s отключена", activityType)
	}

	now := s.now().UTC()

	var partnerID *int64
	if actx != nil && actx.PartnerID != nil && actx.Lat != nil && actx.Lon != nil {
		if err := s.checkGeo(ctx, *actx.PartnerID, *actx.Lat, *actx.Lon); err != nil {
			return nil, err
		}
		partnerID = actx.PartnerID
	}

	var t *model.Transaction
	err = s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		// Row lock on the balance serializes concurrent calls for the same
		// account, so the cooldown and cap checks see committed state.
		if _, err := s.repo.EnsureBalance(ctx, accountID); err != nil {
			return apperr.Wrap(err, "ensure balance")
		}
		if _, err := s.repo.LockBalance(ctx, tx, accountID); err != nil {
			return apperr.Wrap(err, "lock balance")
		}

		last, err := s.repo.LastActivityAt(ctx, tx, accountID, activityType)
		if err != nil {
			return apperr.Wrap(err, "get last activity")
		}
		if wait := cooldownRemaining(last, rule.CooldownHours, now); wait > 0 {
			return apperr.Validationf("слишком рано: попробуйте через %s", formatWait(wait))
		}

		if rule.DailyCap != nil {
			count, err := s.repo.CountActivitiesSince(ctx, tx, accountID, activityType, midnightUTC(now))
			if err != nil {
				return apperr.Wrap(err, "count activities")
			}
			if count >= *rule.DailyCap {
				return apperr.Validationf("дневной лимит по активности %s исчерпан (%d)", activityType, *rule.DailyCap)
			}
		}

		at := activityType
		t, err = s.ledger.AddPointsTx(ctx, tx, AddPointsInput{
			AccountID:    accountID,
			Points:       rule.Points,
			Type:         model.TransactionTypeActivity,
			ActivityType: &at,
		})
		if err != nil {
			return err
		}

		return s.repo.InsertActivityLog(ctx, tx, &model.ActivityLog{
			AccountID:     accountID,
			ActivityType:  activityType,
			TransactionID: t.ID,
			PartnerID:     partnerID,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ActivityService) checkGeo(ctx context.Context, partnerID int64, lat, lon float64) error {
	partner, err := s.repo.GetPartner(ctx, partnerID)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			return apperr.NotFoundf("заведение не найдено")
		}
		return apperr.Wrap(err, "get partner")
	}
	if !partner.IsActive {
		return apperr.Validationf("заведение не участвует в программе")
	}

	radius := s.cfg.GeoRadiusM
	if partner.RadiusM != nil {
		radius = *partner.RadiusM
	}

	if d := haversineMeters(lat, lon, partner.Lat, partner.Lon); d > radius {
		return apperr.Validationf("вы слишком далеко от заведения: %.0f м (допустимо %.0f м)", d, radius)
	}
	return nil
}

func (s *ActivityService) ListRules(ctx context.Context) ([]model.ActivityRule, error) {
	rules, err := s.repo.ListActivityRules(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list activity rules")
	}
	return rules, nil
}

// UpsertRule is the operator mutation path; takes effect on the next
// RecordActivity call since rules are re-read per call.
func (s *ActivityService) UpsertRule(ctx context.Context, rule *model.ActivityRule) error {
	if rule.ActivityType == "" {
		return apperr.Validationf("не указан тип активности")
	}
	if rule.Points <= 0 {
		return apperr.Validationf("количество баллов должно быть положительным")
	}
	if rule.CooldownHours < 0 {
		return apperr.Validationf("кулдаун не может быть отрицательным")
	}
	if rule.DailyCap != nil && *rule.DailyCap <= 0 {
		return apperr.Validationf("дневной лимит должен быть положительным")
	}
	if err := s.repo.UpsertActivityRule(ctx, rule); err != nil {
		return apperr.Wrap(err, "upsert activity rule")
	}
	return nil
}

// cooldownRemaining returns how long until the activity may be credited
// again, zero when no cooldown applies.
func cooldownRemaining(last *time.Time, cooldownHours int, now time.Time) time.Duration {
	if last == nil || cooldownHours <= 0 {
		return 0
	}
	next := last.Add(time.Duration(cooldownHours) * time.Hour)
	if now.Before(next) {
		return next.Sub(now)
	}
	return 0
}

// midnightUTC returns 00:00 UTC of the day containing now; the daily cap
// counts credited instances from this instant.
func midnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func formatWait(d time.Duration) string {
	return d.Round(time.Minute).String()
}

const earthRadiusM = 6371000

// haversineMeters is the great-circle distance between two WGS84 points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const rad = math.Pi / 180

	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
