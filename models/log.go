package models

import "time"

type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	}
	return false
}

// ScrapeLog is a daemon-written audit entry. RunID and SiteID are absent
// for lines logged outside a run.
type ScrapeLog struct {
	ID        int64      `json:"id" db:"id"`
	RunID     *int64     `json:"run_id" db:"run_id"`
	Timestamp *time.Time `json:"timestamp" db:"timestamp"`
	Level     LogLevel   `json:"level" db:"level"`
	Message   string     `json:"message" db:"message"`
	SiteID    *string    `json:"site_id" db:"site_id"`
}
