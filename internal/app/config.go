package app

import (
	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/staging"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	config.Options

	// AWS overrides how the tool's own S3 and KMS clients are created. The
	// region defaults to Options.Region.
	AWS staging.Options
}

// NewConfig validates the options and returns a Config.
func NewConfig(opts config.Options) (*Config, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Config{Options: opts, AWS: staging.Options{Region: opts.Region}}, nil
}
