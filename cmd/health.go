package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/initializ/cip/selection"
)

func newHealthCmd(root *rootOptions) *cobra.Command {
	opts := selection.DefaultHealthOptions()
	var top int
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report how evenly scaffolds fill the scoring layers and where they overlap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.engine(cmd.Context(), nil)
			if err != nil {
				return err
			}
			ph, err := e.Health(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if root.jsonOut {
				return printJSON(out, ph)
			}
			fmt.Fprint(out, root.styles(out).Health(ph, top))
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.DetectionThreshold, "detection-threshold", opts.DetectionThreshold, "layer spread that signals friction")
	cmd.Flags().Float64Var(&opts.TensionThreshold, "tension-threshold", opts.TensionThreshold, "agreement below which a layer pair is reported")
	cmd.Flags().Float64Var(&opts.CoherenceDivisor, "coherence-divisor", opts.CoherenceDivisor, "divisor applied to the layer standard deviation")
	cmd.Flags().IntVar(&top, "top", 10, "number of coupled pairs to show")
	return cmd
}
