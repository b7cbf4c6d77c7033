package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"dirsync/internal/coordinator"
	"dirsync/pkg/logging"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveWorkers  int
	serveDebounce time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation workers and settings watcher",
	Long: `Keeps a pool of reconciliation workers running and watches the data
directory for settings changes. Whenever a tenant's settings file is
written, a dry-run is scheduled for that tenant so its change report
stays current.

Stops gracefully on SIGINT or SIGTERM; a running reconciliation is
canceled and finishes with a cancellation status.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, persist := newCoordinator(serveWorkers)
	coord.Start(ctx)

	watcher := coordinator.NewSettingsWatcher(coord, persist, serveDebounce)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		coord.Stop()
		return nil
	})

	logging.Info("Serve", "Watching %s with %d workers", flagDataDir, serveWorkers)
	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info("Serve", "Shutdown complete")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&serveWorkers, "workers", 2, "Number of concurrent reconciliation workers")
	serveCmd.Flags().DurationVar(&serveDebounce, "debounce", 500*time.Millisecond, "Quiet period after a settings write before scheduling a run")
}
