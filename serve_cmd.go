package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/narrator/internal/queue"
	"github.com/dgnsrekt/narrator/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP narration queue",
	Long: paragraph(fmt.Sprintf("\n%s on a local HTTP port. POST /speak interrupts, POST /addToQueue waits its turn and POST /stop clears everything.",
		keyword("Accept narration requests"))),
	Example: paragraph(`narrator serve --port 8765
curl -X POST localhost:8765/speak -d '{"text":"Hello there"}'`),
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", server.DefaultHost, "address to bind")
	serveCmd.Flags().Int("port", server.DefaultPort, "port to listen on")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(*cobra.Command, []string) error {
	logToStderr()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	qopts := []queue.Option{
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithLogger(log.Default()),
	}
	sopts := []server.Option{
		server.WithLogger(log.Default()),
		server.WithPlayer(rt.engine),
	}
	if rt.telemetry != nil {
		qopts = append(qopts, queue.WithMetrics(rt.telemetry.Recorder()))
		sopts = append(sopts, server.WithMetricsHandler(rt.telemetry.Handler()))
	}

	ctrl := queue.New(rt.engine, qopts...)
	ctrl.Start()
	srv := server.New(cfg.ServerConfig(), ctrl, sopts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Server first so no request races the controller shutdown.
		return errors.Join(srv.Shutdown(shutdownCtx), ctrl.Shutdown(shutdownCtx))
	})

	err = g.Wait()
	rt.engine.Stop()
	log.Info("Stopped")
	return errors.Join(err, rt.Close(context.Background()))
}
