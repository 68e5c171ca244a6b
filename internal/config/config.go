// Package config loads service settings from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all pipeline and server settings, populated from
// environment variables with the VP_ prefix.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// DataDir is the root of the local storage backend; folder arguments
	// of the storage contract are resolved under it.
	DataDir     string `envconfig:"DATA_DIR" default:"data"`
	MappingPath string `envconfig:"MAPPING_PATH" default:"configs/sensor_mapping.yaml"`

	WeatherBaseURL string        `envconfig:"WEATHER_BASE_URL" default:"https://api.open-meteo.com/v1/forecast"`
	WeatherTimeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	ParkingBaseURL string        `envconfig:"PARKING_BASE_URL"`
	ParkingToken   string        `envconfig:"PARKING_TOKEN"`
	ParkingTimeout time.Duration `envconfig:"PARKING_TIMEOUT" default:"10s"`

	// Refresh intervals for the dashboard fragments.
	ParkingRefreshEvery   time.Duration `envconfig:"PARKING_REFRESH_EVERY" default:"15m"`
	InferenceRefreshEvery time.Duration `envconfig:"INFERENCE_REFRESH_EVERY" default:"3h"`

	// Feature engineering parameters.
	ZScoreWindowDays int    `envconfig:"ZSCORE_WINDOW_DAYS" default:"5"`
	Timezone         string `envconfig:"TIMEZONE" default:"Europe/Berlin"`

	// Fixed training split boundaries, inclusive dates.
	TrainStart string `envconfig:"TRAIN_START" default:"2023-01-01"`
	TrainEnd   string `envconfig:"TRAIN_END" default:"2024-04-30"`
	TestStart  string `envconfig:"TEST_START" default:"2024-05-01"`
	TestEnd    string `envconfig:"TEST_END" default:"2024-07-21"`

	// Model artifact naming.
	Algorithm    string `envconfig:"ALGORITHM" default:"extra_trees"`
	ModelsFolder string `envconfig:"MODELS_FOLDER" default:"models/models_trained"`
}

// Load reads configuration from the environment, applying defaults where
// unset, and validates it. Invalid configuration aborts the run.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("VP", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid VP_LOG_LEVEL %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid VP_LOG_FORMAT %q", c.LogFormat)
	}
	if c.ZScoreWindowDays < 1 {
		return fmt.Errorf("VP_ZSCORE_WINDOW_DAYS must be at least 1, got %d", c.ZScoreWindowDays)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("VP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ParkingRefreshEvery <= 0 || c.InferenceRefreshEvery <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid VP_TIMEZONE %q: %w", c.Timezone, err)
	}
	for name, v := range map[string]string{
		"VP_TRAIN_START": c.TrainStart,
		"VP_TRAIN_END":   c.TrainEnd,
		"VP_TEST_START":  c.TestStart,
		"VP_TEST_END":    c.TestEnd,
	} {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

// Location returns the configured timezone. Validation has already
// checked that it loads.
func (c *Config) Location() *time.Location {
	loc, _ := time.LoadLocation(c.Timezone)
	return loc
}

// SplitDates returns the four training split boundaries. They are naive
// wall-clock dates, like every Time index in the pipeline.
func (c *Config) SplitDates() (trainStart, trainEnd, testStart, testEnd time.Time) {
	parse := func(s string) time.Time {
		t, _ := time.Parse("2006-01-02", s)
		return t
	}
	return parse(c.TrainStart), parse(c.TrainEnd), parse(c.TestStart), parse(c.TestEnd)
}
