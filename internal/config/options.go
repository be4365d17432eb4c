package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
	"github.com/pingcap/errors"
)

// DefaultKMSKeyID is the KMS key used for staging data keys unless overridden.
const DefaultKMSKeyID = "alias/RedshiftUnloadCopyUtility"

// Options is the resolved, immutable set of tool parameters for one run.
type Options struct {
	ConnectionPreTest          bool
	SourceTablePreTest         bool
	DestinationTablePreTest    bool
	DestinationTableAutoCreate bool
	// TableName renames the destination table of a table migration.
	TableName       string
	Region          string
	ConfigFile      string
	MaxWorkers      int
	KMSKeyID        string
	LogLevel        string
	LogFormat       string
	HealthcheckPort int
	NoColor         bool
}

// Params is one layer of optional tool parameters. A nil field leaves the
// value of lower layers untouched.
type Params struct {
	ConnectionPreTest          *bool   `toml:"connectionPreTest"`
	SourceTablePreTest         *bool   `toml:"sourceTablePreTest"`
	DestinationTablePreTest    *bool   `toml:"destinationTablePreTest"`
	DestinationTableAutoCreate *bool   `toml:"destinationTableAutoCreate"`
	TableName                  *string `toml:"tableName"`
	Region                     *string `toml:"region"`
	ConfigFile                 *string `toml:"s3ConfigFile"`
	MaxWorkers                 *int    `toml:"maxWorkers"`
	KMSKeyID                   *string `toml:"kmsKeyId"`
	LogLevel                   *string `toml:"logLevel"`
	LogFormat                  *string `toml:"logFormat"`
	HealthcheckPort            *int    `toml:"healthcheckPort"`
	NoColor                    *bool   `toml:"noColor"`
}

// Defaults returns the built-in parameter layer.
func Defaults() Params {
	return Params{
		ConnectionPreTest:          ptr(true),
		SourceTablePreTest:         ptr(true),
		DestinationTablePreTest:    ptr(true),
		DestinationTableAutoCreate: ptr(false),
		TableName:                  ptr(""),
		Region:                     ptr(""),
		ConfigFile:                 ptr(""),
		MaxWorkers:                 ptr(4),
		KMSKeyID:                   ptr(DefaultKMSKeyID),
		LogLevel:                   ptr("info"),
		LogFormat:                  ptr("console"),
		HealthcheckPort:            ptr(0),
		NoColor:                    ptr(false),
	}
}

// LoadParamsFile reads a TOML parameter layer. Unknown keys are rejected so
// that typos do not silently fall back to defaults.
func LoadParamsFile(path string) (Params, error) {
	var p Params
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Params{}, errors.Annotatef(err, "failed to read options file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Params{}, errors.Errorf("unknown keys in options file %s: %s", path, strings.Join(keys, ", "))
	}
	return p, nil
}

// Resolve merges the built-in defaults with the given layers, later layers
// winning, and validates the result.
func Resolve(layers ...Params) (Options, error) {
	merged := Defaults()
	for _, layer := range layers {
		if err := mergo.Merge(&merged, layer, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return Options{}, errors.Trace(err)
		}
	}

	opts := Options{
		ConnectionPreTest:          *merged.ConnectionPreTest,
		SourceTablePreTest:         *merged.SourceTablePreTest,
		DestinationTablePreTest:    *merged.DestinationTablePreTest,
		DestinationTableAutoCreate: *merged.DestinationTableAutoCreate,
		TableName:                  *merged.TableName,
		Region:                     *merged.Region,
		ConfigFile:                 *merged.ConfigFile,
		MaxWorkers:                 *merged.MaxWorkers,
		KMSKeyID:                   *merged.KMSKeyID,
		LogLevel:                   strings.ToLower(*merged.LogLevel),
		LogFormat:                  strings.ToLower(*merged.LogFormat),
		HealthcheckPort:            *merged.HealthcheckPort,
		NoColor:                    *merged.NoColor,
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.ConfigFile == "" {
		return errors.New("a job file location is required")
	}
	if o.MaxWorkers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", o.MaxWorkers)
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", o.LogLevel)
	}
	switch o.LogFormat {
	case "console", "json":
	default:
		return errors.Errorf("invalid log format %q: must be 'console' or 'json'", o.LogFormat)
	}
	if o.HealthcheckPort < 0 || o.HealthcheckPort > 65535 {
		return errors.Errorf("invalid healthcheck port %d", o.HealthcheckPort)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
