package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Timestamp layouts the daemon has been observed writing. RFC3339 is the
// canonical form; the space-separated variants show up in rows written
// through SQLite's CURRENT_TIMESTAMP default.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTime turns a stored timestamp into a *time.Time. NULL, empty, and
// unparsable values all come back nil; display code treats the three
// identically and must never see a parse error.
func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// decodeData decodes a snapshot's raw JSON payload, falling back to an
// empty map on NULL, empty, or undecodable input.
func decodeData(ns sql.NullString) map[string]any {
	out := map[string]any{}
	if !ns.Valid || ns.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nzInt(n sql.NullInt64) int {
	if !n.Valid {
		return 0
	}
	return int(n.Int64)
}

func nzInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// nzTimePtr is the typed-column sibling of parseTime, for backends that
// return real timestamps instead of text.
func nzTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nzFloat(n sql.NullFloat64) float64 {
	if !n.Valid {
		return 0
	}
	return n.Float64
}

func nzBool(n sql.NullBool) bool {
	return n.Valid && n.Bool
}

func nzString(n sql.NullString) string {
	if !n.Valid {
		return ""
	}
	return n.String
}

func nzStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
