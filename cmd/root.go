// Package cmd implements the cip CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/initializ/cip"
	"github.com/initializ/cip/internal/tui"
	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/logging"
	"github.com/initializ/cip/policy"
	"github.com/initializ/cip/telemetry"
)

var appVersion = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	domainPath    string
	scaffoldDir   string
	verbose       bool
	jsonOut       bool
	themeOverride string

	logger *zap.Logger
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cip",
		Short: "cip: scaffold selection, run policies and output guardrails",
		Long: "cip picks a reasoning scaffold for each request, resolves per-request run policies " +
			"and checks generated output against the domain guardrails.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.domainPath, "domain", "", "domain config file (default: built-in defaults)")
	cmd.PersistentFlags().StringVar(&opts.scaffoldDir, "scaffolds", "scaffolds", "scaffold directory")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")
	cmd.PersistentFlags().StringVar(&opts.themeOverride, "theme", "", "color theme: dark, light, or auto")

	cmd.AddCommand(newSelectCmd(opts))
	cmd.AddCommand(newPolicyCmd(opts))
	cmd.AddCommand(newGuardCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newPresetsCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("cip %s (commit: %s)\n", version, commit))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *rootOptions) log() logging.Logger {
	return logging.With(logging.NewZapLogger(o.logger), map[string]any{"domain": o.domainPath})
}

// engine loads the configured domain and scaffolds.
func (o *rootOptions) engine(ctx context.Context, client llm.Client) (*cip.Engine, error) {
	l := o.log()
	e, err := cip.New(ctx, cip.Config{
		DomainPath:  o.domainPath,
		ScaffoldDir: o.scaffoldDir,
		Logger:      l,
		Sink:        telemetry.NewLogSink(l),
		Client:      client,
	})
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return e, nil
}

func (o *rootOptions) styles(w io.Writer) *tui.StyleSet {
	return tui.ForWriter(w, o.themeOverride)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// policyFlags are the policy expression flags shared by select and guard.
type policyFlags struct {
	text   string
	preset string
}

func (p *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.text, "policy", "", "constraint text, e.g. \"be more creative, skip disclaimers\"")
	cmd.Flags().StringVar(&p.preset, "preset", "", "named policy preset")
}

func (p *policyFlags) expression() policy.Expression {
	return policy.Expression{Text: p.text, Preset: p.preset}
}
