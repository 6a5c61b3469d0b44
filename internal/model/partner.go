package model

import "time"

// Partner is a venue participating in the loyalty program. RadiusM == nil
// falls back to the configured default check-in radius.
type Partner struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Lat       float64   `json:"lat" db:"lat"`
	Lon       float64   `json:"lon" db:"lon"`
	RadiusM   *float64  `json:"radius_m,omitempty" db:"radius_m"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
