package config

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/fsutil"
)

// DefaultClusterPort is the warehouse port used when a job omits it.
const DefaultClusterPort = 5439

// Kind is the granularity of a migration source.
type Kind int

const (
	KindDatabase Kind = iota
	KindSchema
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindSchema:
		return "schema"
	default:
		return "database"
	}
}

// Job is one migration described by a job file.
type Job struct {
	// Name is the file the job was loaded from.
	Name    string
	Source  Endpoint `hcl:"unloadSource,block"`
	Target  Endpoint `hcl:"copyTarget,block"`
	Staging Staging  `hcl:"s3Staging,block"`
	Remain  hcl.Body `hcl:",remain"`
}

// Endpoint identifies a warehouse cluster and optionally a schema and table in it.
type Endpoint struct {
	ClusterEndpoint string   `hcl:"clusterEndpoint"`
	ClusterPort     int      `hcl:"clusterPort,optional"`
	ConnectUser     string   `hcl:"connectUser"`
	ConnectPwd      string   `hcl:"connectPwd,optional"`
	Database        string   `hcl:"db"`
	SchemaName      string   `hcl:"schemaName,optional"`
	TableName       string   `hcl:"tableName,optional"`
	SSLMode         string   `hcl:"sslMode,optional"`
	ExplicitIDs     bool     `hcl:"explicit_ids,optional"`
	Remain          hcl.Body `hcl:",remain"`
}

// Kind derives the migration granularity from the names that are set.
func (e Endpoint) Kind() Kind {
	switch {
	case e.TableName != "":
		return KindTable
	case e.SchemaName != "":
		return KindSchema
	default:
		return KindDatabase
	}
}

// Staging describes the S3 area used between unload and copy.
type Staging struct {
	Path            string   `hcl:"path"`
	Region          string   `hcl:"region,optional"`
	DeleteOnSuccess *bool    `hcl:"deleteOnSuccess,optional"`
	IAMRole         string   `hcl:"aws_iam_role,optional"`
	AccessKeyID     string   `hcl:"aws_access_key_id,optional"`
	SecretAccessKey string   `hcl:"aws_secret_access_key,optional"`
	SessionToken    string   `hcl:"aws_session_token,optional"`
	KMSGeneratedKey bool     `hcl:"kmsGeneratedKey,optional"`
	Remain          hcl.Body `hcl:",remain"`
}

// CleanupEnabled reports whether staged objects are removed after a copy.
func (s Staging) CleanupEnabled() bool {
	return s.DeleteOnSuccess == nil || *s.DeleteOnSuccess
}

// Fetcher reads a remote job file, e.g. from an s3:// URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LoadJobs loads every job at location. A local directory yields one job per
// .json or .hcl file inside it; an s3:// URL or a single file yields one job.
func LoadJobs(ctx context.Context, location string, fetcher Fetcher) ([]*Job, error) {
	logger := ctxlog.FromContext(ctx)

	if strings.HasPrefix(location, "s3://") {
		if fetcher == nil {
			return nil, errors.Errorf("cannot load %s: no remote fetcher configured", location)
		}
		src, err := fetcher.Fetch(ctx, location)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to fetch job file %s", location)
		}
		job, err := ParseJob(location, src)
		if err != nil {
			return nil, err
		}
		return []*Job{job}, nil
	}

	files, err := fsutil.FindFilesByExtension(location, ".json", ".hcl")
	if err != nil {
		return nil, errors.Annotatef(err, "failed to find job files in %s", location)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no job files found in %s", location)
	}
	logger.Debug("Discovered job files.", zap.Int("count", len(files)))

	jobs := make([]*Job, 0, len(files))
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Trace(err)
		}
		job, err := ParseJob(file, src)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ParseJob decodes and validates one job file. Files ending in .hcl use native
// HCL syntax; everything else is parsed as HCL's JSON syntax.
func ParseJob(filename string, src []byte) (*Job, error) {
	parser := hclparse.NewParser()

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.HasSuffix(filename, ".hcl") {
		file, diags = parser.ParseHCL(src, filename)
	} else {
		file, diags = parser.ParseJSON(src, filename)
	}
	if diags.HasErrors() {
		return nil, errors.Errorf("failed to parse job file %s: %s", filename, diags.Error())
	}

	job := &Job{Name: path.Base(filename)}
	if diags := gohcl.DecodeBody(file.Body, evalContext(), job); diags.HasErrors() {
		return nil, errors.Errorf("failed to decode job file %s: %s", filename, diags.Error())
	}
	if err := job.Validate(); err != nil {
		return nil, errors.Annotatef(err, "invalid job file %s", filename)
	}
	return job, nil
}

// Validate checks the cross-field rules that the schema cannot express and
// fills in defaults.
func (j *Job) Validate() error {
	for _, ep := range []*Endpoint{&j.Source, &j.Target} {
		if ep.ClusterPort == 0 {
			ep.ClusterPort = DefaultClusterPort
		}
		if ep.TableName != "" && ep.SchemaName == "" {
			return errors.Errorf("tableName %q requires schemaName", ep.TableName)
		}
	}
	if j.Source.Kind() != KindTable && j.Target.Kind() != KindDatabase {
		return errors.Errorf("a %s migration needs a database-level copyTarget", j.Source.Kind())
	}
	if !strings.HasPrefix(j.Staging.Path, "s3://") {
		return errors.Errorf("s3Staging.path must be an s3:// URL, got %q", j.Staging.Path)
	}
	if (j.Staging.AccessKeyID == "") != (j.Staging.SecretAccessKey == "") {
		return errors.New("s3Staging needs both aws_access_key_id and aws_secret_access_key")
	}
	if j.Staging.IAMRole == "" && j.Staging.AccessKeyID == "" {
		return errors.New("s3Staging needs aws_iam_role or access keys for the warehouse to reach S3")
	}
	return nil
}
