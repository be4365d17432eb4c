package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/specialistvlad/unloadcopy/internal/app"
	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/report"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) *ExitError {
	return &ExitError{Code: report.ExitConfigError, Message: err.Error()}
}

const longHelp = `Unloadcopy exports tables from a source warehouse cluster to S3 as an
encrypted dataset and copies them into a destination cluster.

CONFIG is a local job file, a directory of job files (.json or .hcl), or an
s3:// URL of a job file. Every table of every job runs in one shared schedule.

Options are taken from the built-in defaults, then the --defaults TOML file,
then the flags given explicitly on the command line.`

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	var cfg *app.Config

	cmd := &cobra.Command{
		Use:           "unloadcopy [flags] [CONFIG]",
		Short:         "Migrate warehouse tables through encrypted S3 staging",
		Long:          longHelp,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			c, err := configFromFlags(cmd.Flags(), positional)
			if err != nil {
				return err
			}
			if c == nil {
				return cmd.Usage()
			}
			cfg = c
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)
	registerFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			return nil, false, exitErr
		}
		return nil, false, usageError(err)
	}
	if cfg == nil {
		// Help was requested or no job file was given.
		return nil, true, nil
	}
	return cfg, false, nil
}

func registerFlags(fs *pflag.FlagSet) {
	defaults := config.Defaults()

	fs.StringP("config", "c", "", "Job file, directory of job files, or s3:// URL of a job file.")
	fs.String("defaults", "", "TOML file with tool options, applied before explicit flags.")
	fs.String("region", "", "AWS region of the job file, the KMS key and the S3 clients.")
	fs.String("table-name", "", "Rename the destination table of a table migration.")
	fs.Bool("connection-pre-test", *defaults.ConnectionPreTest, "Check that both clusters are reachable before any transfer.")
	fs.Bool("source-table-pre-test", *defaults.SourceTablePreTest, "Check that every source table exists before any transfer.")
	fs.Bool("destination-table-pre-test", *defaults.DestinationTablePreTest, "Check that every destination table exists before any transfer.")
	fs.Bool("destination-table-auto-create", *defaults.DestinationTableAutoCreate, "Create missing destination tables from the source definition.")
	fs.Int("workers", *defaults.MaxWorkers, "Maximum number of tasks running at the same time.")
	fs.String("kms-key-id", *defaults.KMSKeyID, "KMS key used for jobs with kmsGeneratedKey set.")
	fs.String("log-level", *defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.String("log-format", *defaults.LogFormat, "Log output format. Options: 'console' or 'json'.")
	fs.Int("healthcheck-port", *defaults.HealthcheckPort, "Port for the HTTP health check and metrics server. 0 is disabled.")
	fs.Bool("no-color", *defaults.NoColor, "Disable colors in the final report.")
	fs.String("aws-endpoint", "", "Custom S3 and KMS endpoint, e.g. for a local S3 emulator.")
	_ = fs.MarkHidden("aws-endpoint")
}

// configFromFlags layers the defaults file and the explicitly set flags. It
// returns nil when no job file location is known.
func configFromFlags(fs *pflag.FlagSet, positional []string) (*app.Config, error) {
	params := config.Params{
		ConnectionPreTest:          changed(fs, "connection-pre-test", fs.GetBool),
		SourceTablePreTest:         changed(fs, "source-table-pre-test", fs.GetBool),
		DestinationTablePreTest:    changed(fs, "destination-table-pre-test", fs.GetBool),
		DestinationTableAutoCreate: changed(fs, "destination-table-auto-create", fs.GetBool),
		TableName:                  changed(fs, "table-name", fs.GetString),
		Region:                     changed(fs, "region", fs.GetString),
		ConfigFile:                 changed(fs, "config", fs.GetString),
		MaxWorkers:                 changed(fs, "workers", fs.GetInt),
		KMSKeyID:                   changed(fs, "kms-key-id", fs.GetString),
		LogLevel:                   changed(fs, "log-level", fs.GetString),
		LogFormat:                  changed(fs, "log-format", fs.GetString),
		HealthcheckPort:            changed(fs, "healthcheck-port", fs.GetInt),
		NoColor:                    changed(fs, "no-color", fs.GetBool),
	}
	if params.ConfigFile == nil && len(positional) > 0 {
		params.ConfigFile = &positional[0]
	}

	var layers []config.Params
	if path, _ := fs.GetString("defaults"); path != "" {
		fileParams, err := config.LoadParamsFile(path)
		if err != nil {
			return nil, usageError(err)
		}
		layers = append(layers, fileParams)
		if params.ConfigFile == nil {
			params.ConfigFile = fileParams.ConfigFile
		}
	}
	if params.ConfigFile == nil || *params.ConfigFile == "" {
		return nil, nil
	}
	layers = append(layers, params)

	opts, err := config.Resolve(layers...)
	if err != nil {
		return nil, usageError(err)
	}
	cfg, err := app.NewConfig(opts)
	if err != nil {
		return nil, usageError(err)
	}
	if endpoint, _ := fs.GetString("aws-endpoint"); endpoint != "" {
		cfg.AWS.Endpoint = endpoint
		cfg.AWS.ForcePathStyle = true
	}
	return cfg, nil
}

// changed returns the flag's value if it was set on the command line.
func changed[T any](fs *pflag.FlagSet, name string, get func(string) (T, error)) *T {
	if !fs.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag %s: %v", name, err))
	}
	return &v
}
