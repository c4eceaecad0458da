// File: cmd/health.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/captchafill/internal/observability"
	"github.com/xkilldash9x/captchafill/internal/recognition"
)

func newHealthCmd() *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Checks that the recognition service is reachable and healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			client := recognition.NewClient(cfg.Recognition().Endpoint, logger)
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("recognition service unhealthy: %w", err)
			}

			logger.Debug("Recognition service healthy.", zap.String("endpoint", client.Endpoint()))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	healthCmd.Flags().String("endpoint", "", "Recognition service /solve URL (overrides config/env)")
	bindFlag(healthCmd.Flags(), "endpoint", "recognition.endpoint")
	return healthCmd
}
