package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

// SettingsStore is the operator-facing slice of the settings repository.
type SettingsStore interface {
	SetSetting(ctx context.Context, key, value string) error
	GetAllSettings(ctx context.Context) (map[string]string, error)
}

type BonusRepo interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	GetChain(ctx context.Context, q sqlx.ExtContext, accountID int64, maxDepth int) ([]model.ChainLink, error)
	InsertBonusRecord(ctx context.Context, q sqlx.ExtContext, rec *model.ReferralBonus) (bool, error)
	GetAllSettings(ctx context.Context) (map[string]string, error)
}

// Notifier pushes credit notifications to referrers. Implemented by the
// Telegram bot; delivery is best-effort and never blocks the webhook.
type Notifier interface {
	SendBonusCredited(chatID int64, amount float64) error
}

// BonusService propagates a percentage of every qualifying purchase up the
// referral chain. It is the only writer of REFERRAL_BONUS transactions.
type BonusService struct {
	repo     BonusRepo
	ledger   *LedgerService
	notifier Notifier

	mu  sync.RWMutex
	cfg config.LoyaltyConfig
}

func NewBonusService(repo BonusRepo, ledger *LedgerService, cfg config.LoyaltyConfig) *BonusService {
	return &BonusService{repo: repo, ledger: ledger, cfg: cfg}
}

// SetNotifier is called from main once the bot exists (avoids a circular
// dependency between the bot and the services it uses).
func (s *BonusService) SetNotifier(n Notifier) {
	s.notifier = n
}

// OnTransaction credits each ancestor of the payer its configured percentage
// of amount. The whole pass — up to MaxDepth credits plus their audit rows —
// commits as one transaction, and the (source_transaction_id, level) key
// makes a retried call after a partial failure a no-op per already-credited
// level rather than a double-credit.
func (s *BonusService) OnTransaction(ctx context.Context, sourceTxID uuid.UUID, payerID int64, amount float64) (*model.BonusSummary, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("сумма покупки должна быть положительной")
	}

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	summary := &model.BonusSummary{}
	var credited []model.ReferralBonus
	err := s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		credited = credited[:0]
		chain, err := s.repo.GetChain(ctx, tx, payerID, cfg.MaxDepth)
		if err != nil {
			return apperr.Wrap(err, "get chain")
		}

		for _, link := range chain {
			bonus, ok := levelBonus(link.Level, amount, cfg)
			if !ok {
				continue
			}

			inserted, err := s.repo.InsertBonusRecord(ctx, tx, &model.ReferralBonus{
				ReferrerID:          link.AncestorID,
				RefereeID:           payerID,
				Level:               link.Level,
				Amount:              bonus,
				SourceTransactionID: sourceTxID,
			})
			if err != nil {
				return apperr.Wrap(err, "insert bonus record")
			}
			if !inserted {
				// Already credited for this source event and level.
				continue
			}

			desc := fmt.Sprintf("Реферальный бонус %d уровня: +%.2f баллов", link.Level, bonus)
			refID := sourceTxID
			if _, err := s.ledger.AddPointsTx(ctx, tx, AddPointsInput{
				AccountID:   link.AncestorID,
				Points:      bonus,
				Type:        model.TransactionTypeReferralBonus,
				ReferenceID: &refID,
				Description: &desc,
			}); err != nil {
				return err
			}

			summary.BonusesProcessed++
			summary.TotalAmount += bonus
			credited = append(credited, model.ReferralBonus{ReferrerID: link.AncestorID, Amount: bonus})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil && len(credited) > 0 {
		go func(credited []model.ReferralBonus) {
			for _, c := range credited {
				_ = s.notifier.SendBonusCredited(c.ReferrerID, c.Amount)
			}
		}(credited)
	}
	return summary, nil
}

// Reload re-reads percentage and threshold overrides from loyalty_settings,
// merging them over the startup configuration. Called on demand by the admin
// surface; nothing caches implicitly.
func (s *BonusService) Reload(ctx context.Context) error {
	settings, err := s.repo.GetAllSettings(ctx)
	if err != nil {
		return apperr.Wrap(err, "load loyalty settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	percents := make(map[int]float64, len(s.cfg.BonusPercents))
	for level, pct := range s.cfg.BonusPercents {
		percents[level] = pct
	}
	thresholds := make(map[int]float64, len(s.cfg.MinThresholds))
	for level, min := range s.cfg.MinThresholds {
		thresholds[level] = min
	}

	for level := 1; level <= s.cfg.MaxDepth; level++ {
		if v, ok := parseSettingFloat(settings, fmt.Sprintf("bonus_percent_l%d", level)); ok {
			percents[level] = v
		}
		if v, ok := parseSettingFloat(settings, fmt.Sprintf("bonus_min_l%d", level)); ok {
			thresholds[level] = v
		}
	}

	s.cfg.BonusPercents = percents
	s.cfg.MinThresholds = thresholds
	return nil
}

// Config returns the currently effective loyalty parameters.
func (s *BonusService) Config() config.LoyaltyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// levelBonus computes the rounded bonus for one chain level; ok is false when
// the level has no percentage configured or the bonus falls below the
// minimum threshold.
func levelBonus(level int, amount float64, cfg config.LoyaltyConfig) (float64, bool) {
	pct, ok := cfg.BonusPercents[level]
	if !ok || pct <= 0 {
		return 0, false
	}

	bonus := round2(amount * pct)
	if bonus < cfg.MinThresholds[level] {
		return 0, false
	}
	return bonus, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseSettingFloat(settings map[string]string, key string) (float64, bool) {
	raw, ok := settings[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
