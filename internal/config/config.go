package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		SQLitePath string `yaml:"sqlite_path" default:"prices.db" validate:"required"`
	} `yaml:"database"`
	Forecast Forecast `yaml:"forecast"`
	Schedule struct {
		// Empty runs once and exits.
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
		Job            string `yaml:"job" default:"pricecast"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Forecast holds the pipeline knobs.
type Forecast struct {
	Horizon    int           `yaml:"horizon" default:"24" validate:"min=1"`
	MinHistory int           `yaml:"min_history" default:"48" validate:"min=2"`
	MinPrice   float64       `yaml:"min_price" default:"0.01" validate:"gt=0"`
	Workers    int           `yaml:"workers" default:"1" validate:"min=1,max=64"`
	FitTimeout time.Duration `yaml:"fit_timeout" default:"30s" validate:"gt=0"`
	DryRun     bool          `yaml:"dry_run"`
	Primary    Primary       `yaml:"primary"`
}

// Primary configures the logistic-growth model family.
type Primary struct {
	Enabled               *bool   `yaml:"enabled" default:"true"`
	WeeklySeasonality     *bool   `yaml:"weekly_seasonality" default:"true"`
	DailySeasonality      bool    `yaml:"daily_seasonality"`
	ChangepointPriorScale float64 `yaml:"changepoint_prior_scale" default:"0.1" validate:"gt=0"`
	MaxChangepoints       *int    `yaml:"max_changepoints" default:"25" validate:"omitempty,min=0"`
	ChangepointRange      float64 `yaml:"changepoint_range" default:"0.8" validate:"gt=0,lte=1"`
	CapMultiplier         float64 `yaml:"cap_multiplier" default:"2" validate:"gt=1"`
	FloorPrice            float64 `yaml:"floor_price" default:"0.5" validate:"gt=0"`
	MaxIterations         int     `yaml:"max_iterations" default:"200" validate:"min=1"`
}

// PrimaryEnabled reports whether the logistic family is available for this run.
func (c *Config) PrimaryEnabled() bool {
	return c.Forecast.Primary.Enabled == nil || *c.Forecast.Primary.Enabled
}

// WeeklySeasonality reports whether weekly terms are fitted.
func (c *Config) WeeklySeasonality() bool {
	return c.Forecast.Primary.WeeklySeasonality == nil || *c.Forecast.Primary.WeeklySeasonality
}

// MaxChangepoints is the changepoint limit; 0 fits a single growth rate.
func (c *Config) MaxChangepoints() int {
	if c.Forecast.Primary.MaxChangepoints == nil {
		return 25
	}
	return *c.Forecast.Primary.MaxChangepoints
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("PRICECAST_CRON"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("PRICECAST_PRIMARY"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Forecast.Primary.Enabled = &on
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}

	// Defaults fill only zero-valued fields.
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
