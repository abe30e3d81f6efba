// Pressmill Copilot Core — the automation brain of the Pressmill CMS.
//
// It owns the gated tool execution engine, the cron task scheduler, the
// health-check and alert lifecycle, and the notification dispatcher,
// exposed over a small admin HTTP API.
package main

import (
	"os"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/cli"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := cli.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
