package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

var ErrRuleNotFound = errors.New("activity rule not found")

func (r *Repository) GetActivityRule(ctx context.Context, activityType string) (*model.ActivityRule, error) {
	var rule model.ActivityRule
	err := r.db.GetContext(ctx, &rule, "SELECT * FROM activity_rules WHERE activity_type = $1", activityType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *Repository) ListActivityRules(ctx context.Context) ([]model.ActivityRule, error) {
	var rules []model.ActivityRule
	err := r.db.SelectContext(ctx, &rules, "SELECT * FROM activity_rules ORDER BY activity_type")
	return rules, err
}

// UpsertActivityRule is the operator mutation path; the engine only reads.
func (r *Repository) UpsertActivityRule(ctx context.Context, rule *model.ActivityRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_rules (activity_type, points, cooldown_hours, daily_cap, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (activity_type) DO UPDATE SET
			points = EXCLUDED.points,
			cooldown_hours = EXCLUDED.cooldown_hours,
			daily_cap = EXCLUDED.daily_cap,
			is_active = EXCLUDED.is_active`,
		rule.ActivityType, rule.Points, rule.CooldownHours, rule.DailyCap, rule.IsActive)
	return err
}

// LastActivityAt returns the most recent credited instant for the cooldown
// check, or nil when the account never performed this activity.
func (r *Repository) LastActivityAt(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string) (*time.Time, error) {
	var last time.Time
	err := sqlx.GetContext(ctx, q, &last, `
		SELECT created_at FROM activity_log
		WHERE account_id = $1 AND activity_type = $2
		ORDER BY created_at DESC LIMIT 1`, accountID, activityType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &last, nil
}

// CountActivitiesSince counts credited instances for the daily-cap check.
func (r *Repository) CountActivitiesSince(ctx context.Context, q sqlx.ExtContext, accountID int64, activityType string, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM activity_log
		WHERE account_id = $1 AND activity_type = $2 AND created_at >= $3`,
		accountID, activityType, since)
	return count, err
}

func (r *Repository) InsertActivityLog(ctx context.Context, q sqlx.ExtContext, entry *model.ActivityLog) error {
	query := `
		INSERT INTO activity_log (account_id, activity_type, transaction_id, partner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := q.QueryRowxContext(ctx, query,
		entry.AccountID,
		entry.ActivityType,
		entry.TransactionID,
		entry.PartnerID,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}
