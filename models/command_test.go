package models

import "testing"

func TestValidateCommand(t *testing.T) {
	for _, cmd := range []CommandType{CmdScrapeNow, CmdPause, CmdResume, CmdSyncNow} {
		if err := ValidateCommand(cmd, nil); err != nil {
			t.Fatalf("%s without params should be valid: %v", cmd, err)
		}
	}

	if err := ValidateCommand(CmdScrapeSite, &CommandParams{Site: "zillow"}); err != nil {
		t.Fatalf("scrape_site with site should be valid: %v", err)
	}
	if err := ValidateCommand(CmdScrapeSite, nil); err == nil {
		t.Fatal("scrape_site without params should be rejected")
	}
	if err := ValidateCommand(CmdScrapeSite, &CommandParams{}); err == nil {
		t.Fatal("scrape_site with empty site should be rejected")
	}

	if err := ValidateCommand(CommandType("restart"), nil); err == nil {
		t.Fatal("unknown command should be rejected")
	}
	if err := ValidateCommand(CommandType(""), nil); err == nil {
		t.Fatal("empty command should be rejected")
	}
}

func TestLogLevelValid(t *testing.T) {
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal} {
		if !l.Valid() {
			t.Fatalf("%s should be valid", l)
		}
	}
	if LogLevel("TRACE").Valid() {
		t.Fatal("TRACE is not a defined level")
	}
}
