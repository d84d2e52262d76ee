package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"coopStore/events"
	"coopStore/handlers"
	"coopStore/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the cart HTTP API",
	Long: `Starts the HTTP API. Each browser gets its own cart, keyed by the
cartSessionId cookie, in the configured storage backend.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	bus := events.NewBus()
	st, err := openCartStorage(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	cat := openCatalogRepos(ctx, cfg, logger)
	defer cat.Close()

	bus.Subscribe(events.External, func(ev events.Event) {
		logger.Debug("cart changed by another instance", zap.String("key", ev.Key), zap.String("origin", ev.Origin))
	})
	if err = st.watcher.Start(ctx); err != nil {
		return err
	}

	ha := handlers.NewHandler(handlers.HandlerParams{
		Carts: func(key string) *services.CartService {
			return newCartService(key, cfg, st, cat, bus, logger)
		},
		Logger: logger,
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handlers.NewRouter(ha),
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server...", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Backend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cncl := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cncl()
	return srv.Shutdown(shutdownCtx)
}
