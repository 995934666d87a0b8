package commands

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/artificer/errors"
	"github.com/teranos/artificer/query"
	"github.com/teranos/artificer/repository"
	"github.com/teranos/artificer/storage"
)

var (
	queryParams     []string
	queryVars       []string
	queryOrderBy    string
	queryAscending  bool
	queryStart      int
	queryCount      int
	queryOutput     string
	queryStored     bool
	querySaveAs     string
	queryProperties []string
)

// QueryCmd runs repository queries
var QueryCmd = &cobra.Command{
	Use:   "query QUERY",
	Short: "Run a repository query",
	Long: `Run a path query against the repository.

Positional '?' parameters come from --param in order, typed by prefix:
  string:ops   number:3   bool:true   (no prefix means string)
Named $variables come from --var name=value with the same prefixes.

Examples:
  artificer query "/s-ramp/xsd/XsdDocument"
  artificer query "/s-ramp/xsd/XsdDocument[@prop1 = ?]" --param value1
  artificer query "/s-ramp/wsdl/Message[part]/part" -o yaml
  artificer query byOwner --stored --var owner=ops
  artificer query "/s-ramp/soa/Service[@owner = $owner]" --save-as byOwner`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	QueryCmd.Flags().StringArrayVar(&queryParams, "param", nil, "Positional parameter (repeatable, in order)")
	QueryCmd.Flags().StringArrayVar(&queryVars, "var", nil, "Named variable name=value (repeatable)")
	QueryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "Core field or custom property to order by")
	QueryCmd.Flags().BoolVar(&queryAscending, "asc", true, "Ascending order")
	QueryCmd.Flags().IntVar(&queryStart, "start", 0, "Index of the first result")
	QueryCmd.Flags().IntVarP(&queryCount, "count", "n", 0, "Maximum results (query.default_count when 0)")
	QueryCmd.Flags().StringVarP(&queryOutput, "output", "o", OutputTable, "Output format (table/json/yaml)")
	QueryCmd.Flags().BoolVar(&queryStored, "stored", false, "Treat QUERY as the name of a stored query")
	QueryCmd.Flags().StringVar(&querySaveAs, "save-as", "", "Store QUERY under this name instead of running it")
	QueryCmd.Flags().StringSliceVar(&queryProperties, "props", nil, "Properties to project (comma separated)")
}

// parseValue reads a typed parameter value
func parseValue(s string) (query.Value, error) {
	kind, raw, ok := strings.Cut(s, ":")
	if !ok {
		return query.String(s), nil
	}
	switch kind {
	case "string":
		return query.String(raw), nil
	case "number":
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return query.Int(i), nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return query.Value{}, errors.NewInvalidRequestError("parameter %q is not a number", raw)
		}
		return query.Number(f), nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return query.Value{}, errors.NewInvalidRequestError("parameter %q is not a boolean", raw)
		}
		return query.Bool(b), nil
	}
	return query.String(s), nil
}

func parseParams(positional, named []string) (query.Params, error) {
	var params query.Params
	for _, p := range positional {
		v, err := parseValue(p)
		if err != nil {
			return params, err
		}
		params.Positional = append(params.Positional, v)
	}
	for _, pair := range named {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return params, errors.NewInvalidRequestError("variable %q is not name=value", pair)
		}
		v, err := parseValue(raw)
		if err != nil {
			return params, err
		}
		if params.Named == nil {
			params.Named = map[string]query.Value{}
		}
		params.Named[name] = v
	}
	return params, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	params, err := parseParams(queryParams, queryVars)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if querySaveAs != "" {
		sq := &storage.StoredQuery{
			Name:          querySaveAs,
			Query:         args[0],
			PropertyNames: queryProperties,
			OrderBy:       queryOrderBy,
			Ascending:     queryAscending,
		}
		if err := s.repo.CreateStoredQuery(s.ctx, sq); err != nil {
			return err
		}
		pterm.Success.Printfln("Stored query %s", querySaveAs)
		return nil
	}

	req := repository.QueryRequest{
		Query:         args[0],
		Params:        params,
		OrderBy:       queryOrderBy,
		Ascending:     queryAscending,
		StartIndex:    queryStart,
		Count:         queryCount,
		PropertyNames: queryProperties,
	}
	var rs *repository.ResultSet
	if queryStored {
		rs, err = s.repo.ExecuteStored(s.ctx, args[0], params, req)
	} else {
		rs, err = s.repo.Execute(s.ctx, req)
	}
	if err != nil {
		return err
	}

	if len(rs.Rows) > 0 && queryOutput != OutputTable {
		return writeValue(cmd.OutOrStdout(), queryOutput, rs.Rows)
	}
	if err := writeArtifacts(cmd.OutOrStdout(), queryOutput, rs.Artifacts); err != nil {
		return err
	}
	if queryOutput == OutputTable {
		pterm.Info.Printfln("%d of %d (from %d, ordered by %s)", len(rs.Artifacts), rs.Total, rs.StartIndex, rs.OrderBy)
	}
	return nil
}
