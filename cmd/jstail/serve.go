package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcHandler "github.com/moroshma/jstail/internal/delivery/grpc"
	"github.com/moroshma/jstail/internal/delivery/ws"
	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker behind a WebSocket bridge",
		Long: `serve runs the worker and exposes it on
  GET /ws       WebSocket: JSON commands in, JSON events out
  GET /metrics  Prometheus metrics
and the gRPC health service on the gRPC port.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	rt, err := setup(ctx, root, nil)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	rt.log.Info("Starting jstail serve",
		logger.String("version", version),
		logger.Int("http_port", rt.cfg.Server.HTTPPort),
		logger.Int("grpc_port", rt.cfg.Server.GRPCPort),
	)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(ctx, rt.worker, rt.log)
	health := grpcHandler.NewHealthHandler(rt.log)

	r := mux.NewRouter()
	hub.Register(r)
	r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", rt.cfg.Server.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	health.Register(grpcServer)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", rt.cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	g.Go(func() error { return rt.worker.Run(ctx) })
	g.Go(func() error { return rt.events.Drain(ctx, hub, health) })

	g.Go(func() error {
		rt.log.Info("HTTP server listening", logger.Int("port", rt.cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rt.log.Info("gRPC health server listening", logger.Int("port", rt.cfg.Server.GRPCPort))
		return grpcServer.Serve(listener)
	})

	g.Go(func() error {
		<-ctx.Done()
		rt.log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		health.Shutdown()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if addr := rt.cfg.Broker.Address; addr != "" {
		g.Go(func() error {
			return rt.worker.Submit(ctx, entity.SetServerAddress{Address: addr})
		})
	}

	return ignoreCanceled(g.Wait())
}
