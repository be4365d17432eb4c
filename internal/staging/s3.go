package staging

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pingcap/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
)

// deleteBatchSize is the largest batch DeleteObjects accepts.
const deleteBatchSize = 1000

// Store performs the S3 operations of the tool.
type Store struct {
	client s3iface.S3API
}

// NewStore creates a Store over an S3 client.
func NewStore(client s3iface.S3API) *Store {
	return &Store{client: client}
}

// Fetch downloads the object at an s3:// URL.
func (s *Store) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	loc, err := ParseLocation(rawURL)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSuffix(loc.Prefix, "/")
	if key == "" {
		return nil, errors.Errorf("invalid S3 object %q: missing key", rawURL)
	}

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get %s", rawURL)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	return data, errors.Trace(err)
}

// DeletePrefix removes every object under loc and returns how many were
// deleted. Per-object failures are combined into the returned error.
func (s *Store) DeletePrefix(ctx context.Context, loc Location) (int, error) {
	logger := ctxlog.FromContext(ctx)
	if loc.Prefix == "" {
		return 0, errors.Errorf("refusing to delete the whole bucket %s", loc.Bucket)
	}

	var keys []*s3.ObjectIdentifier
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
		Prefix: aws.String(loc.Prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return 0, errors.Annotatef(err, "failed to list %s", loc)
	}
	logger.Debug("Listed staged objects.", zap.Stringer("location", loc), zap.Int("count", len(keys)))

	deleted := 0
	var errs error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(loc.Bucket),
			Delete: &s3.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = multierr.Append(errs, errors.Annotatef(err, "failed to delete objects under %s", loc))
			continue
		}
		deleted += end - start - len(out.Errors)
		for _, e := range out.Errors {
			errs = multierr.Append(errs, errors.Errorf("failed to delete s3://%s/%s: %s",
				loc.Bucket, aws.StringValue(e.Key), aws.StringValue(e.Message)))
		}
	}
	return deleted, errs
}
