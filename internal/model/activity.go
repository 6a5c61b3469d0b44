package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityRule is operator-managed configuration gating point credits.
// DailyCap == nil means unlimited credited instances per UTC day.
type ActivityRule struct {
	ActivityType  string  `json:"activity_type" db:"activity_type"`
	Points        float64 `json:"points" db:"points"`
	CooldownHours int     `json:"cooldown_hours" db:"cooldown_hours"`
	DailyCap      *int    `json:"daily_cap,omitempty" db:"daily_cap"`
	IsActive      bool    `json:"is_active" db:"is_active"`
}

// ActivityLog records every credited activity; cooldown and daily-cap checks
// read it on subsequent calls.
type ActivityLog struct {
	ID            int64     `json:"id" db:"id"`
	AccountID     int64     `json:"account_id" db:"account_id"`
	ActivityType  string    `json:"activity_type" db:"activity_type"`
	TransactionID uuid.UUID `json:"transaction_id" db:"transaction_id"`
	PartnerID     *int64    `json:"partner_id,omitempty" db:"partner_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ActivityContext carries optional request context for geo-gated activities.
type ActivityContext struct {
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	PartnerID *int64   `json:"partner_id,omitempty"`
}

// Seeded activity types. Operators may add more via activity_rules.
const (
	ActivityDailyCheckin   = "daily_checkin"
	ActivityGeoCheckin     = "geo_checkin"
	ActivityProfileFilled  = "profile_filled"
	ActivityCardBound      = "card_bound"
	ActivityReferralSignup = "referral_signup"
)
