package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/initializ/cip"
)

type selectOptions struct {
	tool    string
	id      string
	hint    string
	explain bool
	policy  policyFlags
}

func newSelectCmd(root *rootOptions) *cobra.Command {
	opts := &selectOptions{}
	cmd := &cobra.Command{
		Use:   "select [input]",
		Short: "Select the scaffold for a request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, root, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.tool, "tool", "", "tool the caller is about to use")
	cmd.Flags().StringVar(&opts.id, "id", "", "explicit scaffold id")
	cmd.Flags().StringVar(&opts.hint, "hint", "", "desired output format")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "show the per-scaffold score breakdown")
	opts.policy.register(cmd)
	return cmd
}

func runSelect(cmd *cobra.Command, root *rootOptions, opts *selectOptions, input string) error {
	e, err := root.engine(cmd.Context(), nil)
	if err != nil {
		return err
	}
	req := cip.SelectRequest{
		ToolName:   opts.tool,
		UserInput:  input,
		ScaffoldID: opts.id,
		OutputHint: opts.hint,
		Policy:     opts.policy.expression(),
	}
	res, err := e.Select(req)
	if err != nil {
		return fmt.Errorf("selection failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if root.jsonOut {
		return printJSON(out, res)
	}

	st := root.styles(out)
	sel, eff := res.Selection, res.Effective
	fmt.Fprintln(out, st.KV("scaffold", sel.ScaffoldID))
	fmt.Fprintln(out, st.KV("mode", string(sel.Mode)))
	fmt.Fprintln(out, st.KV("reason", sel.Reason))
	fmt.Fprintln(out, st.KV("confidence", fmt.Sprintf("%.4f", sel.Confidence)))
	if sel.Ambiguous {
		fmt.Fprintln(out, st.Warning("top two scaffolds are within the ambiguity margin"))
	}
	if eff.Temperature != nil {
		fmt.Fprintln(out, st.KV("temperature", fmt.Sprintf("%g", *eff.Temperature)))
	}
	fmt.Fprintln(out, st.KV("format", eff.OutputFormat))
	if eff.Tone != "" {
		fmt.Fprintln(out, st.KV("tone", eff.Tone))
	}
	if len(eff.Disclaimers) > 0 {
		fmt.Fprintln(out, st.KV("disclaimers", strings.Join(eff.Disclaimers, "; ")))
	}
	for _, n := range eff.Notes {
		fmt.Fprintln(out, st.Warning(n))
	}
	for _, u := range res.Policy.Unrecognized {
		fmt.Fprintln(out, st.Warning(fmt.Sprintf("unrecognized policy clause %q", u)))
	}

	if opts.explain {
		ranking := sel.Ranking
		if len(ranking) == 0 {
			if ranking, err = e.Explain(req); err != nil {
				return err
			}
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.Heading("scores"))
		fmt.Fprint(out, st.Scores(ranking, sel.ScaffoldID))
	}
	return nil
}
