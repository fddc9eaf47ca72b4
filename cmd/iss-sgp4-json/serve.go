package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/komasaru/iss-sgp4-json/internal/api"
	"github.com/komasaru/iss-sgp4-json/internal/metrics"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve positions and tracks over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(background(cmd))
		},
	}
	cmd.Flags().String("http-addr", ":8080", "listen address")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	p, err := loadPipeline(a.cfg, a.logger, false)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Options{
		Addr:         a.cfg.HTTPAddr,
		Token:        a.cfg.APIToken,
		TrustProxy:   a.cfg.TrustProxy,
		MaxPositions: a.cfg.MaxPositions,

		RateLimit: a.cfg.RateLimit,

		StreamMaxPerIP:  a.cfg.StreamMaxPerIP,
		StreamKeepalive: a.cfg.StreamKeepalive,
		StreamBandwidth: a.cfg.StreamBandwidth,
	}, api.Deps{
		Resolver: p.resolver,
		EOP:      p.eop,
		Leap:     p.leap,
		Store:    p.store,
		Pool:     p.pool,
		Track:    a.trackConfig(),
	}, a.logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background goroutine to update the element-set age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := p.store.AgeSeconds(); age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if a.cfg.TLERefresh > 0 {
		go a.refreshLoop(ctx, p.store)
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			"addr", a.cfg.HTTPAddr,
			"auth_enabled", a.cfg.APIToken != "",
			"tle_refresh", a.cfg.TLERefresh.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

// refreshLoop fetches element sets every TLERefresh until ctx is done.
func (a *app) refreshLoop(ctx context.Context, store *tle.Store) {
	fetcher := tle.NewFetcher(a.cfg.TLESourceURL, a.logger, a.cfg.TLEExtraURLs...)
	var cache *tle.Cache
	if a.cfg.TLECacheDir != "" {
		cache = tle.NewCache(a.cfg.TLECacheDir, a.cfg.TLECacheMaxFiles)
	}

	refresh := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := refreshElements(fetchCtx, store, fetcher, cache, a.logger); err != nil {
			a.logger.Warn("element-set refresh failed", "error", err)
		}
	}

	if store.Get() == nil {
		refresh()
	}

	ticker := time.NewTicker(a.cfg.TLERefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}
