package models

import "time"

// Property is a deduplicated listing subject keyed by normalized address.
// LatestPrice is derived at query time from the newest snapshot; it is not
// a stored column.
type Property struct {
	ID                string     `json:"id" db:"id"`
	NormalizedAddress string     `json:"normalized_address" db:"normalized_address"`
	City              string     `json:"city" db:"city"`
	Beds              int        `json:"beds" db:"beds"`
	Baths             int        `json:"baths" db:"baths"`
	SqFt              int        `json:"sqft" db:"sqft"`
	PropertyType      string     `json:"property_type" db:"property_type"`
	FirstSeenAt       *time.Time `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt        *time.Time `json:"last_seen_at" db:"last_seen_at"`
	TimesListed       int        `json:"times_listed" db:"times_listed"`
	Synced            bool       `json:"synced" db:"synced"`
	LatestPrice       int        `json:"latest_price" db:"-"`
}
