package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeActivity      TransactionType = "activity"
	TransactionTypeReferralBonus TransactionType = "referral_bonus"
	TransactionTypeSpend         TransactionType = "spend"
	TransactionTypeManual        TransactionType = "manual"
)

// Balance is the derived projection over the append-only transaction log.
// TotalPoints only grows; AvailablePoints = TotalPoints minus spends and
// never goes below zero.
type Balance struct {
	AccountID       int64     `json:"account_id" db:"account_id"`
	TotalPoints     float64   `json:"total_points" db:"total_points"`
	AvailablePoints float64   `json:"available_points" db:"available_points"`
	LastUpdated     time.Time `json:"last_updated" db:"last_updated"`
}

// Transaction is a write-once ledger row. Points are a signed delta:
// positive = credit, negative = spend.
type Transaction struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	AccountID    int64           `json:"account_id" db:"account_id"`
	Points       float64         `json:"points" db:"points"`
	Type         TransactionType `json:"type" db:"type"`
	ActivityType *string         `json:"activity_type,omitempty" db:"activity_type"`
	ReferenceID  *uuid.UUID      `json:"reference_id,omitempty" db:"reference_id"`
	Description  *string         `json:"description,omitempty" db:"description"`
	PartnerName  *string         `json:"partner_name,omitempty" db:"-"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

type TransactionFilter struct {
	AccountID    int64
	Type         *TransactionType
	ActivityType *string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

type TransactionSummary struct {
	TotalEarned float64                     `json:"total_earned"`
	TotalSpent  float64                     `json:"total_spent"`
	ByType      map[TransactionType]float64 `json:"by_type"`
}

type TransactionPage struct {
	Items   []Transaction      `json:"items"`
	Total   int                `json:"total"`
	Summary TransactionSummary `json:"summary"`
}
