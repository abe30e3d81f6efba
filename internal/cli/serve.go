package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the copilot server (admin API, scheduler, health checks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			srv, err := server.New(ctx)
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}
			if port > 0 {
				srv.Port = port
			}

			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", srv.Port),
				Handler:      srv.Handler,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
				<-sigChan

				log.Info().Msg("Shutting down gracefully...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			log.Info().
				Int("port", srv.Port).
				Str("version", srv.Config.Version).
				Msg("Copilot core ready")

			err = httpServer.ListenAndServe()

			srv.Scheduler.Stop()
			if cerr := srv.Store.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("Store close failed")
			}
			if serr := srv.ShutdownFunc(ctx); serr != nil {
				log.Warn().Err(serr).Msg("Telemetry shutdown failed")
			}

			if err != http.ErrServerClosed {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides COPILOT_PORT)")
	return cmd
}
