package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/court-queue-board/internal/api"
	"github.com/DoyleJ11/court-queue-board/internal/config"
	"github.com/DoyleJ11/court-queue-board/internal/httpapi"
	"github.com/DoyleJ11/court-queue-board/internal/hub"
	"github.com/DoyleJ11/court-queue-board/internal/obs"
	"github.com/DoyleJ11/court-queue-board/internal/push"
	"github.com/DoyleJ11/court-queue-board/internal/syncer"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := obs.NewLogger(cfg.LogLevel, cfg.DevLogging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", append(cfg.Fields(), zap.String("version", version))...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		return err
	}

	client := api.New(cfg.UpstreamURL, &http.Client{Timeout: cfg.HTTPTimeout})
	// no client timeout: the stream stays open until the server or ctx ends it
	channel := push.NewSSEChannel(client.StreamURL(), &http.Client{}, log.Named("push"))
	board := syncer.New(ctx, client, channel, log.Named("syncer"),
		syncer.WithRetryDelay(cfg.RetryDelay),
		syncer.WithFetchTimeout(cfg.HTTPTimeout),
	)
	h := hub.NewHub(ctx, board.Snapshot(), board.Changes(), log.Named("hub"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(h, board, client, log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		board.Close()
		h.Send(hub.ShutdownHub{})
		return multierr.Append(err, shutdownTracer(sctx))
	})

	return g.Wait()
}
