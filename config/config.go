package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// DSN is either a SQLite file path or a postgres:// connection string.
	DSN             string
	LogLevel        string
	RefreshInterval time.Duration
	MetricsAddr     string
	Automation      []AutomationRule
}

// AutomationRule enqueues a command on a cron schedule, one rule per yaml
// file under config/automation/.
type AutomationRule struct {
	Name    string `yaml:"name"`
	Cron    string `yaml:"cron"`
	Command string `yaml:"command"`
	Site    string `yaml:"site,omitempty"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DSN:             getEnv("DATABASE_URL", getEnv("DB_PATH", "scraper.db")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RefreshInterval: 2 * time.Second,
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
	}

	if interval := os.Getenv("REFRESH_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.RefreshInterval = d
		}
	}

	rules, err := loadAutomationRules("config/automation")
	if err != nil {
		return nil, err
	}
	cfg.Automation = rules

	return cfg, nil
}

func loadAutomationRules(dir string) ([]AutomationRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rules []AutomationRule
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		var rule AutomationRule
		if err := yaml.Unmarshal(data, &rule); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if rule.Name == "" {
			rule.Name = entry.Name()
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
