package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/pressmill/pressmill/copilot-core/pkg/server"
	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a one-shot health check and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			srv, err := server.New(ctx)
			if err != nil {
				return fmt.Errorf("initialize copilot: %w", err)
			}
			defer srv.Store.Close()
			defer srv.Scheduler.Stop()

			report := srv.Health.RunHealthCheck(ctx)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}

			if report.Status == models.HealthCritical {
				os.Exit(2)
			}
			return nil
		},
	}
	return cmd
}
