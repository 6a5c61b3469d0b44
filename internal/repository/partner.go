package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Djju69/KARMABOT1-sub001/internal/model"
)

var ErrPartnerNotFound = errors.New("partner not found")

func (r *Repository) GetPartner(ctx context.Context, id int64) (*model.Partner, error) {
	var p model.Partner
	err := r.db.GetContext(ctx, &p, "SELECT * FROM partners WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPartnerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListPartners(ctx context.Context) ([]model.Partner, error) {
	var partners []model.Partner
	err := r.db.SelectContext(ctx, &partners,
		"SELECT * FROM partners WHERE is_active ORDER BY name")
	return partners, err
}
