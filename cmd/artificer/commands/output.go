package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/query"
)

// Output formats accepted by --output
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// FormatError renders err for the terminal. Query errors point at the
// offending token; repository errors carry their stable code and hints.
func FormatError(err error) string {
	var perr *query.ParseError
	if errors.As(err, &perr) {
		return perr.FormatError(query.ErrorContextTerminal)
	}
	var b strings.Builder
	b.WriteString(pterm.Error.Sprint(err.Error()))
	if code := errors.Code(err); code != "unknown" {
		fmt.Fprintf(&b, "\n  code: %s", code)
	}
	for _, d := range errors.GetAllDetails(err) {
		fmt.Fprintf(&b, "\n  detail: %s", d)
	}
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(&b, "\n  hint: %s", h)
	}
	return b.String()
}

// writeValue encodes v as JSON or YAML
func writeValue(w io.Writer, format string, v interface{}) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return errors.NewInvalidRequestError("unknown output format %q", format)
}

// writeArtifacts prints artifacts as a table or as persisted records
func writeArtifacts(w io.Writer, format string, arts []*artifact.Artifact) error {
	if format != OutputTable {
		records := make([]artifact.Record, len(arts))
		for i, a := range arts {
			records[i] = artifact.ToRecord(a)
		}
		return writeValue(w, format, records)
	}

	data := pterm.TableData{{"UUID", "Name", "Model", "Type", "Version"}}
	for _, a := range arts {
		data = append(data, []string{a.UUID, a.Name, a.Type.Model, a.Type.QueryName(), a.Version})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render()
}
