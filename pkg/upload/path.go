package upload

import (
	"errors"
	"strings"

	"github.com/vango-go/terminal/pkg/streamvar"
)

// ErrMalformedPath is returned when an upload path cannot be split into
// paintable ID, variable name and security key.
var ErrMalformedPath = errors.New("upload: malformed upload path")

// Target identifies the stream variable an upload is posted to.
type Target struct {
	PaintableID string
	Name        string
	Key         string
}

// ParsePath extracts the upload target from pathInfo. The path must contain
// prefix followed by {paintableID}/{variableName}/{securityKey}. The
// paintable ID is the first segment and the key the last one; the variable
// name is everything in between and may itself contain slashes.
func ParsePath(pathInfo, prefix string) (Target, error) {
	prefix = streamvar.NormalizePrefix(prefix)
	i := strings.Index(pathInfo, prefix)
	if i < 0 {
		return Target{}, ErrMalformedPath
	}
	rest := pathInfo[i+len(prefix):]

	first := strings.IndexByte(rest, '/')
	last := strings.LastIndexByte(rest, '/')
	if first <= 0 || last == first || last == len(rest)-1 {
		return Target{}, ErrMalformedPath
	}

	t := Target{
		PaintableID: rest[:first],
		Name:        rest[first+1 : last],
		Key:         rest[last+1:],
	}
	if t.Name == "" {
		return Target{}, ErrMalformedPath
	}
	return t, nil
}
