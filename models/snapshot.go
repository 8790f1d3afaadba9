package models

import "time"

// Snapshot is one observed listing state for a property at a point in time.
// Data carries the scraper's raw payload; it decodes to an empty map when
// the stored column is NULL or unreadable.
type Snapshot struct {
	ID         int64          `json:"id" db:"id"`
	PropertyID string         `json:"property_id" db:"property_id"`
	ListingID  string         `json:"listing_id" db:"listing_id"`
	SiteID     string         `json:"site_id" db:"site_id"`
	URL        string         `json:"url" db:"url"`
	Price      int            `json:"price" db:"price"`
	Data       map[string]any `json:"data" db:"data"`
	ScrapedAt  *time.Time     `json:"scraped_at" db:"scraped_at"`
	RunID      *int64         `json:"run_id" db:"run_id"`
}
