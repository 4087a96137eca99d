package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/initializ/cip/pipeline"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the domain config and every scaffold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootOptions, strict bool) error {
	lc, err := pipeline.Load(cmd.Context(), pipeline.LoadOptions{
		DomainPath:  root.domainPath,
		ScaffoldDir: root.scaffoldDir,
	})

	errOut := cmd.ErrOrStderr()
	st := root.styles(errOut)
	for _, w := range lc.Warnings {
		fmt.Fprintln(errOut, st.Warning(w))
	}
	for _, e := range lc.Errors {
		fmt.Fprintln(errOut, st.Error(e))
	}
	if err != nil && !errors.Is(err, pipeline.ErrInvalidConfig) {
		// Failures that stop a stage before it records anything.
		fmt.Fprintln(errOut, st.Error(err.Error()))
	}

	if len(lc.Errors) > 0 || err != nil {
		return fmt.Errorf("validation failed: %d error(s)", max(len(lc.Errors), 1))
	}
	if strict && len(lc.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d warning(s) treated as errors in strict mode", len(lc.Warnings))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, root.styles(out).Success(fmt.Sprintf("Validation passed: %d scaffold(s).", lc.Index.Len())))
	return nil
}
