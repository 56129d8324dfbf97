package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sqlcoach/internal/render"
)

func renderCmd() *cobra.Command {
	var (
		terminal bool
		width    int
	)
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render explanation markdown as HTML (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				src []byte
				err error
			)
			if len(args) == 1 {
				src, err = os.ReadFile(args[0])
			} else {
				src, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			out := render.Markdown(string(src))
			if terminal {
				if out, err = render.Terminal(string(src), width); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&terminal, "terminal", false, "render for the terminal instead of HTML")
	cmd.Flags().IntVar(&width, "width", 80, "terminal word wrap width")
	return cmd
}
