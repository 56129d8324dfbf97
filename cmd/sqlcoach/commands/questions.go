package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sqlcoach/internal/practice"
	"sqlcoach/internal/sandbox"
)

func questionsCmd() *cobra.Command {
	var (
		difficulty string
		verify     bool
	)
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List the practice questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := practice.LoadBank(cfg.PracticeBank)
			if err != nil {
				return err
			}
			svc := practice.NewService(qs, sandbox.New(sandbox.Options{
				Timeout: cfg.SandboxTimeout,
				MaxRows: cfg.SandboxMaxRows,
				Logger:  logger,
			}))

			if verify {
				if err := svc.Verify(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "all %d solutions verified\n", len(qs))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDIFFICULTY\tTITLE\tTABLES")
			for _, q := range svc.List(difficulty) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", q.ID, q.Difficulty, q.Title, q.Tables)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Easy, Medium or Hard")
	cmd.Flags().BoolVar(&verify, "verify", false, "run every reference solution against its dataset")
	return cmd
}
