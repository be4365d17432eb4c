package nodeid

import (
	"regexp"
	"strings"

	"github.com/pingcap/errors"
)

// segmentRegex accepts warehouse identifiers as they appear in labels.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_$#-]+$`)

// Parse creates a new Address by parsing its canonical string representation.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, errors.New("identifier cannot be empty")
	}

	addr := &Address{}
	for _, segment := range strings.Split(rawID, ".") {
		if segment == "" {
			return nil, errors.New("identifier path contains empty segment")
		}
		if !segmentRegex.MatchString(segment) || segment == "-" {
			return nil, errors.Errorf("invalid path segment format: %q", segment)
		}
		addr.Path = append(addr.Path, segment)
	}
	return addr, nil
}
