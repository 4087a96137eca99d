package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPolicyCmd(root *rootOptions) *cobra.Command {
	var preset string
	cmd := &cobra.Command{
		Use:   "policy [text]",
		Short: "Resolve a run policy from constraint text or a preset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicy(cmd, root, strings.Join(args, " "), preset)
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "named policy preset")
	return cmd
}

func runPolicy(cmd *cobra.Command, root *rootOptions, text, preset string) error {
	if text == "" && preset == "" {
		return fmt.Errorf("constraint text or --preset is required")
	}
	e, err := root.engine(cmd.Context(), nil)
	if err != nil {
		return err
	}
	expr := (&policyFlags{text: text, preset: preset}).expression()
	res, err := e.ResolvePolicy(expr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if root.jsonOut {
		return printJSON(out, res)
	}
	st := root.styles(out)
	data, err := yaml.Marshal(res.Policy)
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}
	fmt.Fprint(out, st.Box(strings.TrimRight(string(data), "\n")))
	fmt.Fprintln(out)
	for _, c := range res.Parsed {
		fmt.Fprintln(out, st.KV(c.Rule, c.Raw))
	}
	if res.Malformed {
		fmt.Fprintln(out, st.Warning("constraint text could not be parsed"))
	}
	for _, u := range res.Unrecognized {
		fmt.Fprintln(out, st.Warning(fmt.Sprintf("unrecognized clause %q", u)))
	}
	return nil
}
