package analytics

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the tunables of the report assembler.
type Config struct {
	// TopN is the rank cutoff of the top customers per branch analysis
	TopN int

	// Quantiles is the number of buckets of the segments analysis.
	// The quartiles analysis always uses four.
	Quantiles int

	// MovingWindow is the number of trailing months averaged per position
	MovingWindow int

	// PartialWindows allows averages over fewer than MovingWindow months
	// at the start of a branch series. When false those positions are null.
	PartialWindows bool

	// AllowNegativeAmounts accepts refunds and reversals at load
	AllowNegativeAmounts bool

	// Workers bounds the parallelism of the join resolver (0 = sequential)
	Workers int
}

// DefaultConfig returns top 3, quartiles and a 3-month trailing average
// with partial leading windows.
func DefaultConfig() Config {
	return Config{
		TopN:                 3,
		Quantiles:            4,
		MovingWindow:         3,
		PartialWindows:       true,
		AllowNegativeAmounts: false,
		Workers:              4,
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.TopN < 1 {
		return fmt.Errorf("%w: top n must be positive, got %d", ErrInvalidConfig, c.TopN)
	}
	if c.Quantiles < 1 {
		return fmt.Errorf("%w: quantiles must be positive, got %d", ErrInvalidConfig, c.Quantiles)
	}
	if c.MovingWindow < 1 {
		return fmt.Errorf("%w: moving window must be positive, got %d", ErrInvalidConfig, c.MovingWindow)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// ConfigFromEnv starts from DefaultConfig and applies environment overrides:
// ANALYTICS_TOP_N, ANALYTICS_QUANTILES, ANALYTICS_MOVING_WINDOW,
// ANALYTICS_PARTIAL_WINDOWS, ANALYTICS_ALLOW_NEGATIVE, ANALYTICS_WORKERS.
func ConfigFromEnv() (Config, error) {
	config := DefaultConfig()

	ints := []struct {
		env string
		dst *int
	}{
		{"ANALYTICS_TOP_N", &config.TopN},
		{"ANALYTICS_QUANTILES", &config.Quantiles},
		{"ANALYTICS_MOVING_WINDOW", &config.MovingWindow},
		{"ANALYTICS_WORKERS", &config.Workers},
	}
	for _, v := range ints {
		raw := strings.TrimSpace(os.Getenv(v.env))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return config, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, v.env, raw)
		}
		*v.dst = n
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"ANALYTICS_PARTIAL_WINDOWS", &config.PartialWindows},
		{"ANALYTICS_ALLOW_NEGATIVE", &config.AllowNegativeAmounts},
	}
	for _, v := range bools {
		raw := strings.TrimSpace(os.Getenv(v.env))
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return config, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, v.env, raw)
		}
		*v.dst = b
	}

	return config, config.Validate()
}
