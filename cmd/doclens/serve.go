package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/doclens/internal/api"
	"github.com/liliang-cn/doclens/internal/service"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the session to a browser over a local HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags, false)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return runServe(ctx, a)
		},
	}
}

func runServe(ctx context.Context, a *app) error {
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.orchestrator.Start(ctx)
	stager := service.NewStager(a.cfg.Staging.Dir)
	defer func() {
		if err := stager.Discard(a.orchestrator.SessionID()); err != nil {
			a.logger.Warn("failed to discard staged files", zap.Error(err))
		}
	}()

	router := api.SetupRouter(a.orchestrator, stager, a.history, api.RouterConfig{
		APIKey:       a.cfg.Server.APIKey,
		AllowOrigins: a.cfg.Server.AllowOrigins,
		Logger:       a.logger,
	})

	srv := &http.Server{
		Addr:    a.cfg.Address(),
		Handler: router,
		// Uploads and answers can take as long as the backend timeout
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.cfg.Backend.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting doclens bridge",
			zap.String("address", srv.Addr),
			zap.String("backend", a.cfg.Backend.BaseURL),
			zap.String("session_id", a.orchestrator.SessionID()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down bridge...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Bridge exited")
	return nil
}
