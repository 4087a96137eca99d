package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/initializ/cip/mcpserver"
	"github.com/initializ/cip/pipeline"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cip tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := root.engine(ctx, nil)
			if err != nil {
				return err
			}
			log := root.log()

			if watch {
				paths := []string{root.scaffoldDir}
				if root.domainPath != "" {
					paths = append(paths, filepath.Dir(root.domainPath))
				}
				w := pipeline.NewWatcher(func() {
					// A failed reload keeps the previous registry and is logged by the engine.
					_ = e.Reload(ctx)
				}, log, paths...)
				watchCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := w.Watch(watchCtx); err != nil {
						log.Error("scaffold watcher stopped", map[string]any{"error": err.Error()})
					}
				}()
			}

			mcpserver.Version = appVersion
			log.Info("serving MCP on stdio", map[string]any{"scaffolds": e.Index().Len(), "watch": watch})
			return mcpserver.Serve(mcpserver.New(e))
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload scaffolds when files change")
	return cmd
}
