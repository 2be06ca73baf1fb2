// Package output renders search results for the terminal.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/spiffcs/ghsearch/internal/model"
)

// Format represents the output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON:
		return Format(s), nil
	case "":
		return FormatTable, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table or json)", s)
}

// Context is what a formatter knows about the search besides its result.
type Context struct {
	Query   string
	Page    int
	PerPage int
	Filters []string // human-readable filter labels
	Now     time.Time
}

// Formatter defines the interface for output formatters
type Formatter interface {
	Format(resp *model.SearchResponse, ctx Context, w io.Writer) error
}

// NewFormatter creates a formatter for the specified format
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	default:
		return &TableFormatter{}
	}
}
