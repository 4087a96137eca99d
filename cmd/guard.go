package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/llm/providers"
)

type guardOptions struct {
	scaffoldID string
	stream     bool
	chunkSize  int
	policy     policyFlags
}

func newGuardCmd(root *rootOptions) *cobra.Command {
	opts := &guardOptions{}
	cmd := &cobra.Command{
		Use:   "guard [file]",
		Short: "Check a response against the guardrails of a scaffold",
		Long: "Reads a response from a file or stdin and prints the sanitized text. With --stream the " +
			"response is replayed in chunks through the streaming guard and only forwarded text is printed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGuard(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.scaffoldID, "scaffold", "", "scaffold whose guardrails apply (default: domain default)")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "replay the response as a stream")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 16, "characters per streamed chunk")
	opts.policy.register(cmd)
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", args[0], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// chunkText splits s into pieces of at most n runes.
func chunkText(s string, n int) []string {
	if n <= 0 {
		n = 1
	}
	var chunks []string
	runes := []rune(s)
	for len(runes) > 0 {
		k := min(n, len(runes))
		chunks = append(chunks, string(runes[:k]))
		runes = runes[k:]
	}
	return chunks
}

func runGuard(cmd *cobra.Command, root *rootOptions, opts *guardOptions, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	var client llm.Client
	if opts.stream {
		client = providers.NewScripted("replay", chunkText(text, opts.chunkSize)...)
	}
	e, err := root.engine(cmd.Context(), client)
	if err != nil {
		return err
	}

	id := opts.scaffoldID
	if id == "" {
		id = e.Domain().DefaultScaffoldID
	}
	if id == "" {
		return fmt.Errorf("--scaffold is required: the domain has no default scaffold")
	}
	eff, err := e.Effective(id, opts.policy.expression())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var res *guardrail.Result
	if opts.stream {
		forward := func(s string) error {
			if root.jsonOut {
				return nil
			}
			_, err := io.WriteString(out, s)
			return err
		}
		res, err = e.Stream(cmd.Context(), &llm.Request{
			Messages: []llm.Message{{Role: llm.RoleAssistant, Content: text}},
		}, eff, forward)
		if err == nil && !root.jsonOut {
			fmt.Fprintln(out)
		}
	} else {
		res, err = e.Evaluate(cmd.Context(), text, eff.Guardrails)
		if err == nil && !root.jsonOut {
			fmt.Fprintln(out, res.Sanitized)
		}
	}
	if err != nil {
		return fmt.Errorf("guardrail check failed: %w", err)
	}

	if root.jsonOut {
		return printJSON(out, res)
	}
	errOut := cmd.ErrOrStderr()
	fmt.Fprint(errOut, root.styles(errOut).Verdict(res))
	return nil
}
