package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/app"
	"github.com/JakeFAU/webscout/internal/config"
)

// server is what serve needs from the application container.
type server interface {
	Run(ctx context.Context) error
}

// newServer is the application factory. It's a variable so tests can
// replace it.
var newServer = func(cfg config.Config, logger *zap.Logger) (server, error) {
	return app.Build(cfg, logger)
}

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API",
		Long: `Starts the HTTP API and the session sweeper. The server drains in-flight
requests and closes every browser session on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			srv, err := newServer(rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if err := srv.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
