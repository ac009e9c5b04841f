package cmd

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webscout/internal/app"
	"github.com/JakeFAU/webscout/internal/cache"
	"github.com/JakeFAU/webscout/internal/search"
)

// newSearchCmd creates the 'search' subcommand: one orchestrator run with the
// response, or the failed attempts, printed as JSON.
func newSearchCmd() *cobra.Command {
	var providers []string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Runs one search through the provider chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			orch := app.NewOrchestrator(rt.cfg, cache.NewResolution(), rt.logger.Named("search"))
			resp, err := orch.Resolve(cmd.Context(), search.Request{
				Query:     strings.Join(args, " "),
				Providers: providers,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err != nil {
				var failed *search.AllProvidersFailedError
				if errors.As(err, &failed) {
					if encErr := enc.Encode(map[string]any{"error": err.Error(), "attempts": failed.Attempts}); encErr != nil {
						rt.logger.Warn("write attempts failed", zap.Error(encErr))
					}
				}
				return err
			}
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "providers to try first (searxng, serpapi, fetch-fallback)")
	return cmd
}
