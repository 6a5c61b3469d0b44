package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

var (
	ErrCodeNotFound = errors.New("referral code not found")
	ErrCodeTaken    = errors.New("referral code already taken")
)

func (r *Repository) GetReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error) {
	var code model.ReferralCode
	err := r.db.GetContext(ctx, &code,
		"SELECT * FROM referral_codes WHERE account_id = $1", accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

func (r *Repository) GetReferralCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := r.db.GetContext(ctx, &rc,
		"SELECT * FROM referral_codes WHERE code = $1 AND is_active", code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &rc, nil
}

// ReactivateReferralCode flips an account's existing code back to active so
// it resolves again.
func (r *Repository) ReactivateReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error) {
	var code model.ReferralCode
	err := r.db.GetContext(ctx, &code, `
		UPDATE referral_codes SET is_active = TRUE
		WHERE account_id = $1
		RETURNING *`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

// InsertReferralCode persists a candidate. ErrCodeTaken signals a global
// uniqueness collision the caller may retry with a fresh suffix.
func (r *Repository) InsertReferralCode(ctx context.Context, rc *model.ReferralCode) error {
	query := `
		INSERT INTO referral_codes (account_id, code, is_active)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query, rc.AccountID, rc.Code, rc.IsActive).Scan(&rc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to insert referral code: %w", err)
	}
	return nil
}
