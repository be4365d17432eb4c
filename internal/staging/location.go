package staging

import (
	"net/url"
	"path"
	"strings"

	"github.com/pingcap/errors"
)

// Location is an S3 bucket and key prefix.
type Location struct {
	Bucket string
	// Prefix never starts with a slash and, unless empty, ends with one.
	Prefix string
}

// ParseLocation parses an s3://bucket/prefix URL.
func ParseLocation(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, errors.Annotatef(err, "invalid S3 location %q", raw)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return Location{}, errors.Errorf("invalid S3 location %q: expected s3://bucket/prefix", raw)
	}
	return Location{Bucket: u.Host, Prefix: normalizePrefix(u.Path)}, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Join returns a location below l.
func (l Location) Join(elem ...string) Location {
	return Location{Bucket: l.Bucket, Prefix: normalizePrefix(path.Join(append([]string{l.Prefix}, elem...)...))}
}

// Key returns the object key of name inside l.
func (l Location) Key(name string) string {
	return l.Prefix + name
}

// String renders l as an s3:// URL.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Prefix
}
