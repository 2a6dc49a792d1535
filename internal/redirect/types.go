package redirect

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest reports a request descriptor that breaks the caller
	// contract: missing host, missing path, or a path without a leading slash.
	ErrInvalidRequest = errors.New("invalid request descriptor")

	// ErrMalformedRule reports a rule that cannot be compiled into a table.
	ErrMalformedRule = errors.New("malformed rule configuration")
)

// Rule is one configured routing decision. Rules are evaluated in the order
// they appear in a Table.
type Rule struct {
	Name       string
	Host       string
	PathPrefix string
	Target     string

	// PreserveQuery appends the request query to the location when the target
	// does not place it with {query}. Nil means: preserve iff the target
	// contains {path}.
	PreserveQuery *bool
}

// Request describes an incoming request. Query is the raw query string
// without the leading '?'.
type Request struct {
	Host  string
	Path  string
	Query string
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidRequest)
	}
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidRequest, r.Path)
	}
	return nil
}

// Result is the outcome of evaluating a Request. StatusCode and Location are
// only set when Matched is true.
type Result struct {
	Matched    bool   `json:"matched"`
	Location   string `json:"location,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Rule       string `json:"rule,omitempty"`
	Index      int    `json:"index"`
}

func Bool(v bool) *bool {
	return &v
}
