package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/executor"
	"github.com/wbrown/janus-reactive/datalog/query"
)

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var showFacts bool

	cmd := &cobra.Command{
		Use:   "query <json>",
		Short: "Evaluate a query",
		Long: `Evaluate a query and print its bindings.

Example:
  factdb --backend badger --db ./data query \
    '{"statements": [["?id","type","todo"],["?id","title","?title"]], "sort": [["?title",1]]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.ParseQuery([]byte(args[0]))
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.engine.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			if err := writeResult(cmd.OutOrStdout(), opts.Format, q, res, elapsed); err != nil {
				return err
			}
			if showFacts && opts.Format == "text" {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), executor.NewTableFormatter().FormatFacts(res.Facts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showFacts, "facts", false, "also print the facts the result was read from")

	return cmd
}

type resultJSON struct {
	Bindings []query.Binding `json:"bindings"`
	Facts    []datalog.Fact  `json:"facts"`
}

// writeResult prints bindings as a table with the query's variables as
// columns, or the bindings and facts as JSON.
func writeResult(w io.Writer, format string, q query.Query, res query.Result, elapsed time.Duration) error {
	if format == "json" {
		out := resultJSON{Bindings: res.Bindings, Facts: res.Facts}
		if out.Bindings == nil {
			out.Bindings = []query.Binding{}
		}
		if out.Facts == nil {
			out.Facts = []datalog.Fact{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	table := executor.NewTableFormatter().FormatBindings(res.Bindings, queryVariables(q))
	// Add timing to the row count line
	table = strings.Replace(table, " rows_", fmt.Sprintf(" rows (%.3fms)_", float64(elapsed.Microseconds())/1000.0), 1)
	_, err := fmt.Fprintln(w, strings.TrimRight(table, "\n"))
	return err
}

// queryVariables returns the variable names of q in order of appearance.
func queryVariables(q query.Query) []string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range query.ParseStatements(q.Statements) {
		for _, t := range e.Slots() {
			if !t.IsKnown() && !seen[t.Name()] {
				seen[t.Name()] = true
				names = append(names, t.Name())
			}
		}
	}
	return names
}
