package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/httpapi"
	"github.com/MrEthical07/shopauth/internal/rate"
)

const sweepInterval = time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the auth API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	engineCfg, err := a.cfg.Engine()
	if err != nil {
		return err
	}

	be, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	engine, err := shopauth.New().
		WithConfig(engineCfg).
		WithUserStore(be.users).
		WithRefreshStore(be.refresh).
		WithGraph(be.graph).
		WithAuditSink(be.sink).
		WithLogger(a.log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	a.log.Info("engine ready",
		zap.String("signing", report.SigningAlgorithm),
		zap.Duration("access_ttl", report.AccessTTL),
		zap.Duration("refresh_ttl", report.RefreshTTL),
		zap.Uint32("argon2_memory_kb", report.Argon2.Memory),
		zap.Int("lockout_threshold", report.LockoutThreshold),
		zap.Duration("lockout_window", report.LockoutWindow),
		zap.Bool("revoke_family_on_reuse", report.RevokeFamilyOnReuse),
		zap.String("live_resolve", report.LiveResolveSensitivity),
		zap.Int("catalog_size", report.CatalogSize),
	)

	var limiter *rate.Limiter
	if a.cfg.Rate.Enabled {
		limiter = rate.New(rate.Config{PerSecond: a.cfg.Rate.PerSecond, Burst: a.cfg.Rate.Burst})
		go limiter.Run(sweepInterval, ctx.Done())
	}

	api, err := httpapi.New(engine, httpapi.Options{
		Logger:            a.log,
		Limiter:           limiter,
		TrustProxyHeaders: a.cfg.Server.TrustProxyHeaders,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if dropped := engine.AuditDropped(); dropped > 0 {
		a.log.Warn("audit events dropped", zap.Uint64("count", dropped))
	}
	return nil
}
