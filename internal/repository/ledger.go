package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

var ErrBalanceNotFound = errors.New("balance not found")

// GetBalance returns the balance row or ErrBalanceNotFound.
func (r *Repository) GetBalance(ctx context.Context, accountID int64) (*model.Balance, error) {
	var b model.Balance
	err := r.db.GetContext(ctx, &b, "SELECT * FROM balances WHERE account_id = $1", accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &b, nil
}

// EnsureBalance returns the balance row, creating a zero row on first call.
// Idempotent under concurrency: the insert is a no-op when the row exists.
func (r *Repository) EnsureBalance(ctx context.Context, accountID int64) (*model.Balance, error) {
	var b model.Balance
	query := `
		INSERT INTO balances (account_id, total_points, available_points)
		VALUES ($1, 0, 0)
		ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING *`
	if err := r.db.GetContext(ctx, &b, query, accountID); err != nil {
		return nil, fmt.Errorf("failed to ensure balance: %w", err)
	}
	return &b, nil
}

// LockBalance acquires the row-level exclusive lock serializing concurrent
// mutations of the same account for the rest of the transaction.
func (r *Repository) LockBalance(ctx context.Context, tx *sqlx.Tx, accountID int64) (*model.Balance, error) {
	var b model.Balance
	err := sqlx.GetContext(ctx, tx, &b, "SELECT * FROM balances WHERE account_id = $1 FOR UPDATE", accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return &b, nil
}

// CreditBalance upserts the balance, increasing both totals by points.
// The upsert takes the row lock implicitly, so concurrent credits serialize.
func (r *Repository) CreditBalance(ctx context.Context, q sqlx.ExtContext, accountID int64, points float64) (*model.Balance, error) {
	var b model.Balance
	query := `
		INSERT INTO balances (account_id, total_points, available_points)
		VALUES ($1, $2, $2)
		ON CONFLICT (account_id) DO UPDATE SET
			total_points = balances.total_points + EXCLUDED.total_points,
			available_points = balances.available_points + EXCLUDED.available_points,
			last_updated = NOW()
		RETURNING *`
	if err := sqlx.GetContext(ctx, q, &b, query, accountID, points); err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	return &b, nil
}

// DebitBalance decreases available_points only; callers must hold the row
// lock and have verified sufficiency.
func (r *Repository) DebitBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, points float64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE balances SET
			available_points = available_points - $2,
			last_updated = NOW()
		WHERE account_id = $1`, accountID, points)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	return nil
}

// InsertTransaction appends one ledger row and fills ID/CreatedAt.
func (r *Repository) InsertTransaction(ctx context.Context, q sqlx.ExtContext, t *model.Transaction) error {
	query := `
		INSERT INTO transactions (account_id, points, type, activity_type, reference_id, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return q.QueryRowxContext(ctx, query,
		t.AccountID,
		t.Points,
		t.Type,
		t.ActivityType,
		t.ReferenceID,
		t.Description,
	).Scan(&t.ID, &t.CreatedAt)
}

// transactionFilterClause builds the WHERE fragment shared by the history
// page, the total count and the summary aggregates, so all three always see
// the same filtered set.
func transactionFilterClause(f model.TransactionFilter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{f.AccountID}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Type != nil {
		add("type = $%d", *f.Type)
	}
	if f.ActivityType != nil {
		add("activity_type = $%d", *f.ActivityType)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}

	return strings.Join(conds, " AND "), args
}

// ListTransactions returns one history page plus the total row count over the
// filtered set.
func (r *Repository) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	where, args := transactionFilterClause(f)

	var total int
	if err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM transactions WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT * FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	var items []model.Transaction
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return items, total, nil
}

// SummarizeTransactions aggregates earned/spent totals and the per-type
// breakdown over the filtered set (not just the current page).
func (r *Repository) SummarizeTransactions(ctx context.Context, f model.TransactionFilter) (*model.TransactionSummary, error) {
	where, args := transactionFilterClause(f)

	summary := &model.TransactionSummary{ByType: make(map[model.TransactionType]float64)}

	query := `
		SELECT
			COALESCE(SUM(points) FILTER (WHERE points > 0), 0) AS total_earned,
			COALESCE(-SUM(points) FILTER (WHERE points < 0), 0) AS total_spent
		FROM transactions WHERE ` + where
	row := r.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&summary.TotalEarned, &summary.TotalSpent); err != nil {
		return nil, fmt.Errorf("failed to summarize transactions: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx,
		"SELECT type, COALESCE(SUM(points), 0) FROM transactions WHERE "+where+" GROUP BY type", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.TransactionType
		var sum float64
		if err := rows.Scan(&t, &sum); err != nil {
			return nil, err
		}
		summary.ByType[t] = sum
	}
	return summary, rows.Err()
}

// PartnerNamesByTransaction resolves partner display names for geo check-in
// rows via the activity log. Read-side enrichment only.
func (r *Repository) PartnerNamesByTransaction(ctx context.Context, txIDs []any) (map[string]string, error) {
	if len(txIDs) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT l.transaction_id, p.name
		FROM activity_log l
		JOIN partners p ON p.id = l.partner_id
		WHERE l.partner_id IS NOT NULL AND l.transaction_id IN (?)`, txIDs)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to join partner names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var txID, name string
		if err := rows.Scan(&txID, &name); err != nil {
			return nil, err
		}
		names[txID] = name
	}
	return names, rows.Err()
}
