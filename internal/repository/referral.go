package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

var (
	ErrEdgeNotFound = errors.New("referral edge not found")
	ErrEdgeExists   = errors.New("referral edge already exists")
)

func (r *Repository) GetEdge(ctx context.Context, q sqlx.ExtContext, refereeID int64) (*model.ReferralEdge, error) {
	var edge model.ReferralEdge
	err := sqlx.GetContext(ctx, q, &edge, "SELECT * FROM referral_edges WHERE referee_id = $1", refereeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEdgeNotFound
		}
		return nil, err
	}
	return &edge, nil
}

// InsertEdge creates the write-once parent link. The primary key on
// referee_id turns the losing side of two concurrent signups into
// ErrEdgeExists instead of a silent overwrite.
func (r *Repository) InsertEdge(ctx context.Context, q sqlx.ExtContext, edge *model.ReferralEdge) error {
	query := `
		INSERT INTO referral_edges (referee_id, referrer_id, level)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := q.QueryRowxContext(ctx, query, edge.RefereeID, edge.ReferrerID, edge.Level).Scan(&edge.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEdgeExists
		}
		return fmt.Errorf("failed to insert referral edge: %w", err)
	}
	return nil
}

// GetChain walks referrer pointers upward until the root or maxDepth,
// relative levels counted from 1.
func (r *Repository) GetChain(ctx context.Context, q sqlx.ExtContext, accountID int64, maxDepth int) ([]model.ChainLink, error) {
	chain := make([]model.ChainLink, 0, maxDepth)
	current := accountID

	for level := 1; level <= maxDepth; level++ {
		edge, err := r.GetEdge(ctx, q, current)
		if err != nil {
			if errors.Is(err, ErrEdgeNotFound) {
				break
			}
			return nil, err
		}
		chain = append(chain, model.ChainLink{Level: level, AncestorID: edge.ReferrerID})
		current = edge.ReferrerID
	}
	return chain, nil
}

// ListDirectReferees returns the edges whose referrer is any of referrerIDs,
// one downward traversal step.
func (r *Repository) ListDirectReferees(ctx context.Context, referrerIDs []int64) ([]model.ReferralEdge, error) {
	if len(referrerIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		"SELECT * FROM referral_edges WHERE referrer_id IN (?) ORDER BY created_at", referrerIDs)
	if err != nil {
		return nil, err
	}

	var edges []model.ReferralEdge
	if err := r.db.SelectContext(ctx, &edges, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list referees: %w", err)
	}
	return edges, nil
}

// InsertBonusRecord writes the audit row for one propagated bonus. Returns
// false without error when the (source_transaction_id, level) key already
// exists, which makes retried propagation a no-op.
func (r *Repository) InsertBonusRecord(ctx context.Context, q sqlx.ExtContext, rec *model.ReferralBonus) (bool, error) {
	query := `
		INSERT INTO referral_bonuses (referrer_id, referee_id, level, amount, source_transaction_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_transaction_id, level) DO NOTHING
		RETURNING id, created_at`

	err := q.QueryRowxContext(ctx, query,
		rec.ReferrerID,
		rec.RefereeID,
		rec.Level,
		rec.Amount,
		rec.SourceTransactionID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert bonus record: %w", err)
	}
	return true, nil
}

// LevelEarnings sums credited bonus amounts per relative level for one
// referrer.
func (r *Repository) LevelEarnings(ctx context.Context, referrerID int64) (map[int]float64, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT level, COALESCE(SUM(amount), 0)
		FROM referral_bonuses
		WHERE referrer_id = $1
		GROUP BY level`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum level earnings: %w", err)
	}
	defer rows.Close()

	earnings := make(map[int]float64)
	for rows.Next() {
		var level int
		var sum float64
		if err := rows.Scan(&level, &sum); err != nil {
			return nil, err
		}
		earnings[level] = sum
	}
	return earnings, rows.Err()
}
