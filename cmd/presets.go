package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPresetsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the available policy presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.engine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			presets := e.Presets().List()
			out := cmd.OutOrStdout()
			if root.jsonOut {
				return printJSON(out, presets)
			}
			st := root.styles(out)
			for _, p := range presets {
				origin := "domain"
				if p.Builtin {
					origin = "builtin"
				}
				fmt.Fprintln(out, st.KV(p.Name, fmt.Sprintf("%s (%s)", p.Description, origin)))
			}
			return nil
		},
	}
}
