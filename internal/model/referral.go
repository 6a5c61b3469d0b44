package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxReferralDepth caps both the edge level assignment and chain traversal.
const MaxReferralDepth = 3

// ReferralEdge is the one-time parent link from a referee to its referrer.
// Created once at signup, never re-parented. Level is the referee's depth in
// the tree, flattened at MaxReferralDepth.
type ReferralEdge struct {
	RefereeID  int64     `json:"referee_id" db:"referee_id"`
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"`
	Level      int       `json:"level" db:"level"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChainLink is one ancestor in the upward referral chain, Level counted from
// 1 (direct referrer) relative to the starting account.
type ChainLink struct {
	Level      int   `json:"level"`
	AncestorID int64 `json:"ancestor_id"`
}

// ReferralBonus is the write-once audit row for one propagated bonus.
// (SourceTransactionID, Level) is the idempotency key: reprocessing the same
// purchase event can never credit an ancestor twice.
type ReferralBonus struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	ReferrerID          int64     `json:"referrer_id" db:"referrer_id"`
	RefereeID           int64     `json:"referee_id" db:"referee_id"`
	Level               int       `json:"level" db:"level"`
	Amount              float64   `json:"amount" db:"amount"`
	SourceTransactionID uuid.UUID `json:"source_transaction_id" db:"source_transaction_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// BonusSummary is the result of one propagation pass.
type BonusSummary struct {
	BonusesProcessed int     `json:"bonuses_processed"`
	TotalAmount      float64 `json:"total_amount"`
}

type ReferralLevelStats struct {
	Count    int     `json:"count"`
	Earnings float64 `json:"earnings"`
}

type ReferralStats struct {
	Level1         ReferralLevelStats `json:"level_1"`
	Level2         ReferralLevelStats `json:"level_2"`
	Level3         ReferralLevelStats `json:"level_3"`
	TotalReferrals int                `json:"total_referrals"`
	TotalEarnings  float64            `json:"total_earnings"`
}

type TreeMember struct {
	AccountID int64     `json:"account_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

type ReferralTreeLevel struct {
	Count    int          `json:"count"`
	Earnings float64      `json:"earnings"`
	Members  []TreeMember `json:"members"`
}

type ReferralTree struct {
	TotalReferrals int                       `json:"total_referrals"`
	TotalEarnings  float64                   `json:"total_earnings"`
	Levels         map[int]ReferralTreeLevel `json:"levels"`
}

// ReferralCode is a stable, globally unique invite code per account.
type ReferralCode struct {
	AccountID int64     `json:"account_id" db:"account_id"`
	Code      string    `json:"code" db:"code"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
