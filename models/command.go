package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type CommandType string

const (
	CmdScrapeNow  CommandType = "scrape_now"
	CmdScrapeSite CommandType = "scrape_site"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
	CmdSyncNow    CommandType = "sync_now"
)

// Command is one row of the commands table: an intent appended by the
// console and picked up, eventually, by the scraping daemon. The console
// never learns whether a command was consumed.
type Command struct {
	ID        int64           `json:"id" db:"id"`
	Command   CommandType     `json:"command" db:"command"`
	Params    json.RawMessage `json:"params" db:"params"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

type CommandParams struct {
	Site string `json:"site,omitempty"`
}

// ValidateCommand rejects unrecognized command names, and scrape_site
// requests without a target site, before anything reaches the store.
func ValidateCommand(cmd CommandType, params *CommandParams) error {
	switch cmd {
	case CmdScrapeNow, CmdPause, CmdResume, CmdSyncNow:
		return nil
	case CmdScrapeSite:
		if params == nil || params.Site == "" {
			return fmt.Errorf("command %s requires a site param", cmd)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}
