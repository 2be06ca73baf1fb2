package output

import (
	"encoding/json"
	"io"

	"github.com/spiffcs/ghsearch/internal/model"
)

// JSONFormatter writes the response in the same shape the HTTP endpoint serves.
type JSONFormatter struct {
	Pretty bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(resp *model.SearchResponse, _ Context, w io.Writer) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(resp)
}
