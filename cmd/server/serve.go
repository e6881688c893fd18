package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/inventory-sync/internal/adapter/handler"
	"github.com/rl1809/inventory-sync/internal/adapter/handler/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC APIs, the event consumer and the sync scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			fatal("start", err)
		}
		defer a.Close()

		if err := a.ensureCentralStore(ctx); err != nil {
			fatal("register central store", err)
		}

		if err := serve(ctx, a); err != nil {
			fatal("serve", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, a *app) error {
	log := a.log

	grpcServer := grpc.NewServer()
	rpc.RegisterInventoryServiceServer(grpcServer, handler.NewGRPCHandler(a.mutations, a.queries, log))

	lis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    a.cfg.Server.HTTPAddr,
		Handler: handler.NewHTTPHandler(a.mutations, a.queries, a.stores, a.reconciler, log).Routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", a.cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", a.cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.consumer.Run(gctx)
	})
	g.Go(func() error {
		return a.listener.Run(gctx, a.bus, a.cfg.Consumer.StoreGroup)
	})
	if a.cfg.Sync.Interval > 0 {
		g.Go(func() error {
			a.reconciler.Run(gctx, a.cfg.Sync.Interval)
			return nil
		})
	}

	<-gctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	err = g.Wait()
	a.reconciler.Wait()
	log.Info("background workers stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
