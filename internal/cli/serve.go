package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/SmitUplenchwar2687/wsreplay/internal/config"
	xlog "github.com/SmitUplenchwar2687/wsreplay/internal/log"
	"github.com/SmitUplenchwar2687/wsreplay/internal/recorder"
	"github.com/SmitUplenchwar2687/wsreplay/internal/server"
)

const shutdownTimeout = 5 * time.Second

// serve runs the replay server until SIGINT/SIGTERM or a listener error.
func serve(cmd *cobra.Command, cfg config.Config) error {
	if err := xlog.Configure(xlog.Config{Level: cfg.Log.Level, Output: cmd.ErrOrStderr()}); err != nil {
		return err
	}
	log := xlog.WithComponent("cli")

	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	// Fail at startup rather than on the first connection.
	f, err := os.Open(sessCfg.SourcePath)
	if err != nil {
		return err
	}
	f.Close()

	opts := server.Options{}
	if cfg.Replay.Trace != "" {
		rec, err := recorder.OpenFile(cfg.Replay.Trace)
		if err != nil {
			return err
		}
		defer func() {
			log.Info().Int("deliveries", rec.Len()).Str(xlog.FieldPath, cfg.Replay.Trace).Msg("trace closed")
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("closing trace")
			}
		}()
		opts.Recorder = rec
	}

	srv := server.New(cfg.Server.Addr, sessCfg, opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
