package service

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
)

type ReferralRepo interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	GetEdge(ctx context.Context, q sqlx.ExtContext, refereeID int64) (*model.ReferralEdge, error)
	InsertEdge(ctx context.Context, q sqlx.ExtContext, edge *model.ReferralEdge) error
	GetChain(ctx context.Context, q sqlx.ExtContext, accountID int64, maxDepth int) ([]model.ChainLink, error)
	ListDirectReferees(ctx context.Context, referrerIDs []int64) ([]model.ReferralEdge, error)
	LevelEarnings(ctx context.Context, referrerID int64) (map[int]float64, error)
}

// ReferralService owns the referral forest: one immutable parent edge per
// node, levels flattened at MaxDepth.
type ReferralService struct {
	repo   ReferralRepo
	ledger *LedgerService
	cfg    config.LoyaltyConfig
}

func NewReferralService(repo ReferralRepo, ledger *LedgerService, cfg config.LoyaltyConfig) *ReferralService {
	return &ReferralService{repo: repo, ledger: ledger, cfg: cfg}
}

// AddEdge attaches referee under referrer, once and forever. Two concurrent
// signups for the same referee race on the primary key; the loser gets a
// BusinessLogicError, never a silent re-parenting.
func (s *ReferralService) AddEdge(ctx context.Context, refereeID, referrerID int64) (*model.ReferralEdge, error) {
	if refereeID == referrerID {
		return nil, apperr.Validationf("нельзя пригласить самого себя")
	}

	var edge *model.ReferralEdge
	err := s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.repo.GetEdge(ctx, tx, refereeID); err == nil {
			return apperr.BusinessLogicf("реферал уже привязан к пригласившему")
		} else if !errors.Is(err, repository.ErrEdgeNotFound) {
			return apperr.Wrap(err, "check existing edge")
		}

		parentLevel := 0
		parent, err := s.repo.GetEdge(ctx, tx, referrerID)
		if err == nil {
			parentLevel = parent.Level
		} else if !errors.Is(err, repository.ErrEdgeNotFound) {
			return apperr.Wrap(err, "get referrer edge")
		}

		edge = &model.ReferralEdge{
			RefereeID:  refereeID,
			ReferrerID: referrerID,
			Level:      childLevel(parentLevel),
		}
		if err := s.repo.InsertEdge(ctx, tx, edge); err != nil {
			if errors.Is(err, repository.ErrEdgeExists) {
				return apperr.BusinessLogicf("реферал уже привязан к пригласившему")
			}
			return apperr.Wrap(err, "insert edge")
		}

		if s.cfg.SignupBonus > 0 {
			at := model.ActivityReferralSignup
			desc := "Бонус за приглашённого друга"
			_, err := s.ledger.AddPointsTx(ctx, tx, AddPointsInput{
				AccountID:    referrerID,
				Points:       s.cfg.SignupBonus,
				Type:         model.TransactionTypeActivity,
				ActivityType: &at,
				Description:  &desc,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// GetChain returns the ordered upward chain, levels from 1.
func (s *ReferralService) GetChain(ctx context.Context, accountID int64, maxDepth int) ([]model.ChainLink, error) {
	if maxDepth <= 0 || maxDepth > s.cfg.MaxDepth {
		maxDepth = s.cfg.MaxDepth
	}

	var chain []model.ChainLink
	err := s.repo.WithinTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		chain, err = s.repo.GetChain(ctx, tx, accountID, maxDepth)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err, "get chain")
	}
	return chain, nil
}

// GetSubtree traverses downward level by level, grouping descendants with
// counts and the earnings this account received from each level.
func (s *ReferralService) GetSubtree(ctx context.Context, accountID int64, maxDepth int) (*model.ReferralTree, error) {
	if maxDepth <= 0 || maxDepth > s.cfg.MaxDepth {
		maxDepth = s.cfg.MaxDepth
	}

	earnings, err := s.repo.LevelEarnings(ctx, accountID)
	if err != nil {
		return nil, apperr.Wrap(err, "level earnings")
	}

	tree := &model.ReferralTree{Levels: make(map[int]model.ReferralTreeLevel, maxDepth)}
	frontier := []int64{accountID}

	for level := 1; level <= maxDepth; level++ {
		edges, err := s.repo.ListDirectReferees(ctx, frontier)
		if err != nil {
			return nil, apperr.Wrap(err, "list referees")
		}

		members := make([]model.TreeMember, 0, len(edges))
		frontier = frontier[:0]
		for _, e := range edges {
			members = append(members, model.TreeMember{AccountID: e.RefereeID, JoinedAt: e.CreatedAt})
			frontier = append(frontier, e.RefereeID)
		}

		tree.Levels[level] = model.ReferralTreeLevel{
			Count:    len(members),
			Earnings: earnings[level],
			Members:  members,
		}
		tree.TotalReferrals += len(members)
		tree.TotalEarnings += earnings[level]

		if len(frontier) == 0 {
			// Deeper levels stay present with zero counts.
			for l := level + 1; l <= maxDepth; l++ {
				tree.Levels[l] = model.ReferralTreeLevel{Members: []model.TreeMember{}, Earnings: earnings[l]}
				tree.TotalEarnings += earnings[l]
			}
			break
		}
	}
	return tree, nil
}

// GetStats is the compact read shape over the same traversal.
func (s *ReferralService) GetStats(ctx context.Context, accountID int64) (*model.ReferralStats, error) {
	tree, err := s.GetSubtree(ctx, accountID, s.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}

	stats := &model.ReferralStats{
		TotalReferrals: tree.TotalReferrals,
		TotalEarnings:  tree.TotalEarnings,
	}
	for level, l := range tree.Levels {
		ls := model.ReferralLevelStats{Count: l.Count, Earnings: l.Earnings}
		switch level {
		case 1:
			stats.Level1 = ls
		case 2:
			stats.Level2 = ls
		case 3:
			stats.Level3 = ls
		}
	}
	return stats, nil
}

// childLevel caps depth: a referee under a level-3 referrer is also level 3
// (the tree flattens instead of rejecting deeper signups).
func childLevel(parentLevel int) int {
	if parentLevel >= model.MaxReferralDepth {
		return model.MaxReferralDepth
	}
	return parentLevel + 1
}
