package staging

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pingcap/errors"
)

const maxRetries = 3

// Options configures the AWS clients used by the tool itself. Credentials
// left empty fall back to the default AWS credential chain.
type Options struct {
	Region          string
	Endpoint        string
	AccessKey       string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
}

func (o Options) apply() *aws.Config {
	awsConfig := aws.NewConfig().
		WithMaxRetries(maxRetries).
		WithS3ForcePathStyle(o.ForcePathStyle)

	if o.Region != "" {
		awsConfig.WithRegion(o.Region)
	}
	if o.Endpoint != "" {
		awsConfig.WithEndpoint(o.Endpoint)
	}
	if o.AccessKey != "" && o.SecretAccessKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(o.AccessKey, o.SecretAccessKey, o.SessionToken))
	}
	return awsConfig
}

// NewSession creates an AWS session for the given options.
func NewSession(o Options) (*session.Session, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *o.apply(),
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to create AWS session")
	}
	return sess, nil
}
