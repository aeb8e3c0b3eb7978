package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/wbrown/janus-reactive/datalog"
)

func newTransactCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transact <file.json|->",
		Short: "Apply a transaction",
		Long: `Apply a transaction read from a file, or from stdin when the argument is "-".

Example transaction:
  {"sets": [["t1","type","todo"],["t1","title","Buy milk"]], "unsets": []}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTransaction(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.engine.Submit(cmd.Context(), tx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(w).Encode(map[string]interface{}{
					"sets":   len(tx.Sets),
					"unsets": len(tx.Unsets),
				})
			}
			fmt.Fprintf(w, "Applied %d sets, %d unsets (%d subscribers notified)\n",
				len(tx.Sets), len(tx.Unsets), len(b))
			return nil
		},
	}
}

func readTransaction(path string, stdin io.Reader) (datalog.Transaction, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return datalog.Transaction{}, fmt.Errorf("read transaction: %w", err)
	}

	var tx datalog.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return datalog.Transaction{}, fmt.Errorf("parse transaction: %w", err)
	}
	return tx, nil
}
