package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sqlcoach/internal/model"
	"sqlcoach/internal/sandbox"
)

func runCmd() *cobra.Command {
	var setupFile, query string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a query in a throwaway SQLite sandbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			var setup string
			if setupFile != "" {
				b, err := os.ReadFile(setupFile)
				if err != nil {
					return err
				}
				setup = string(b)
			}
			if query == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				query = string(b)
			}

			sb := sandbox.New(sandbox.Options{
				Timeout: cfg.SandboxTimeout,
				MaxRows: cfg.SandboxMaxRows,
				Logger:  logger,
			})
			res, err := sb.Run(cmd.Context(), setup, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Query != nil {
				if err := printResultSet(out, *res.Query); err != nil {
					return err
				}
				fmt.Fprintf(out, "(%d rows)\n", len(res.Query.Rows))
			} else if res.AffectedRows != nil {
				fmt.Fprintf(out, "%d rows affected\n", *res.AffectedRows)
			}

			names := make([]string, 0, len(res.Tables))
			for name := range res.Tables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "\n-- %s\n", name)
				if err := printResultSet(out, res.Tables[name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&setupFile, "setup", "", "file with the setup script")
	cmd.Flags().StringVar(&query, "query", "", "query to run (- reads stdin)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func printResultSet(w io.Writer, set model.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(set.Columns, "\t"))
	for _, row := range set.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if set.Truncated {
		fmt.Fprintln(tw, "...")
	}
	return tw.Flush()
}
