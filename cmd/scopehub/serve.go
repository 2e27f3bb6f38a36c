// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scopehub/scopehub/internal/assign"
	"github.com/scopehub/scopehub/internal/cache"
	"github.com/scopehub/scopehub/internal/discovery"
	"github.com/scopehub/scopehub/internal/pathguard"
	"github.com/scopehub/scopehub/internal/resource"
	"github.com/scopehub/scopehub/internal/server"
	"github.com/scopehub/scopehub/internal/settings"
	"github.com/scopehub/scopehub/internal/watch"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// newServeCommand creates the `scopehub serve` command.
func newServeCommand(app *App) *cobra.Command {
	var (
		addr  string
		token string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP service",
		Long: `Run the localhost HTTP service.

The service exposes batch discovery, streaming discovery (server-sent
events), assignment, and effective settings behind a bearer token. A file
watcher over the resource roots invalidates cached snapshots when the
catalog changes on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), app, addr, token)
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, random loopback port)")
	serveCmd.Flags().StringVar(&token, "token", "", "bearer token (default: generated)")
	return serveCmd
}

func runServe(ctx context.Context, app *App, addrFlag, tokenFlag string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "scopehub",
	})
	if GetVerbose() {
		logger.SetLevel(log.DebugLevel)
	}
	// Library packages log through slog; route them to the same handler.
	slog.SetDefault(slog.New(logger))

	d, cfg, err := app.catalog(ctx)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}
	token := cfg.Server.Token
	if tokenFlag != "" {
		token = tokenFlag
	}

	// The initial snapshot seeds the project allow-list and the watch roots.
	initial, err := d.Snapshot(ctx, nil)
	if err != nil {
		return err
	}

	workingRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	guard := pathguard.New(d.UserRoot(), workingRoot)
	guard.SetProjectDirs(projectDirs(initial))

	store := cache.New[*discovery.Result](cfg.Cache.TTL, cfg.Cache.Staleness)

	srv, err := server.New(server.Options{
		Addr:         addr,
		Token:        token,
		StreamBuffer: cfg.Server.StreamBuffer,
		Catalog:      d,
		Assigner:     assign.New(app.fs, guard, liveResolver{d: d}, d.UserRoot()),
		Settings:     settings.NewResolver(app.fs, d.UserRoot(), guard),
		Cache:        store,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start()
	fmt.Fprintf(app.stdout, "%s scopehub service listening on %s\n", SuccessStyle.Render("✓"), NameStyle.Render(srv.URL()))
	fmt.Fprintf(app.stdout, "  token: %s\n", VerboseStyle.Render(srv.Token()))

	roots := watchRoots(d, initial)
	w, err := watch.New(watch.Config{
		Roots:  roots,
		Ignore: cfg.IgnorePatterns,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Debug("resource roots changed", "files", len(changed))
			srv.InvalidateCache()
			refreshProjectDirs(ctx, d, guard, logger)
			return nil
		},
	})
	if err != nil {
		// The service still works without the watcher; snapshots just stay
		// cached until their TTL or an explicit refresh.
		logger.Warn("watcher unavailable, cache invalidation disabled", "error", err)
	} else {
		go func() {
			if runErr := w.Run(ctx); runErr != nil && ctx.Err() == nil {
				logger.Error("watcher stopped", "error", runErr)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// watchRoots returns the resource roots to monitor: the user root plus every
// discovered project's resource directory.
func watchRoots(d *discovery.Discovery, initial *discovery.Result) []string {
	roots := []string{d.UserRoot()}
	for _, dir := range projectDirs(initial) {
		roots = append(roots, filepath.Join(dir, discovery.ScopeDirName))
	}
	return roots
}

// refreshProjectDirs re-derives the project allow-list after catalog changes
// so assignments may target newly registered projects.
func refreshProjectDirs(ctx context.Context, d *discovery.Discovery, guard *pathguard.Guard, logger *log.Logger) {
	res, err := d.Snapshot(ctx, []resource.Type{resource.TypeProject})
	if err != nil {
		logger.Warn("project rescan failed, allow-list unchanged", "error", err)
		return
	}
	guard.SetProjectDirs(projectDirs(res))
}
