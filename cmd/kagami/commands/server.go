package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kagami/internal/server"
	"github.com/hyperjump/kagami/internal/watcher"
)

var (
	serverHost  string
	serverPort  int
	serverWatch bool
)

// NewServerCmd creates the server command
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve similarity search over HTTP",
		Long: `Load the vector store and serve the HTTP API. When the store is missing
and index.build_on_missing is set, the collection root is ingested first.
With --watch (or watch.enabled) new images dropped into the collection are
embedded and appended while the server runs.

Examples:
  kagami server
  kagami server --port 9090 --watch`,
		Args: cobra.NoArgs,
		RunE: runServer,
	}

	cmd.Flags().StringVar(&serverHost, "host", "", "listen host (defaults to server.host)")
	cmd.Flags().IntVar(&serverPort, "port", 0, "listen port (defaults to server.port)")
	cmd.Flags().BoolVar(&serverWatch, "watch", false, "watch the collection root for new images")

	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if serverWatch {
		cfg.Watch.Enabled = true
	}

	components, err := initializeComponents(cfg, logger, componentOptions{history: true, catalog: true})
	if err != nil {
		return err
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc := components.Service
	if err := components.loadStore(ctx, cfg.Index.BuildOnMissing); err != nil {
		logger.Warn("store not loaded; serving not_ready until reload",
			zap.String("store_path", cfg.Storage.StorePath), zap.Error(err))
	} else if err := components.Catalog.Rebuild(ctx, svc.Store()); err != nil {
		logger.Warn("catalog rebuild failed", zap.Error(err))
	}

	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		watchSvc = newCollectionWatcher(components)
		if err := watchSvc.Start(ctx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		defer watchSvc.Stop()
		if store := svc.Store(); store != nil {
			known := make(map[string]struct{}, store.Len())
			for _, rec := range store.Sources() {
				known[rec.CanonicalPath] = struct{}{}
			}
			added := watchSvc.Backfill(func(path string) bool {
				_, ok := known[path]
				return ok
			})
			if added > 0 {
				logger.Info("appended images added while offline", zap.Int("count", added))
			}
		}
	}

	srv := server.NewServer(svc, &cfg.Server, logger,
		server.WithCatalog(components.Catalog, cfg.Collection.Root),
		server.WithHistory(components.History),
		server.WithStorePath(cfg.Storage.StorePath),
		server.WithExtensions(cfg.Collection.Extensions),
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// newCollectionWatcher appends every new image under the collection root to the
// running service and its catalog.
func newCollectionWatcher(c *Components) *watcher.Watcher {
	cfg := c.Config
	logger := c.Logger
	return watcher.NewWatcher(cfg.Collection.Root,
		func(path string) {
			row, err := c.Service.Append(context.Background(), path)
			if err != nil && row < 0 {
				logger.Warn("watch append failed", zap.String("path", path), zap.Error(err))
				return
			}
			if err != nil {
				logger.Warn("appended image not persisted", zap.String("path", path), zap.Error(err))
			}
			if store := c.Service.Store(); store != nil && row < store.Len() {
				if err := c.Catalog.Add(row, store.Source(row)); err != nil {
					logger.Warn("catalog add failed", zap.String("path", path), zap.Error(err))
				}
			}
			logger.Debug("watch appended image", zap.String("path", path), zap.Int("row", row))
		},
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithExtensions(cfg.Collection.Extensions),
	)
}
