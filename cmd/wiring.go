package cmd

import (
	"context"

	"dirsync/internal/coordinator"
	"dirsync/internal/settings"
	"dirsync/internal/store"
)

// newCoordinator wires a coordinator for one CLI invocation: the
// settings store under --data-dir and the in-memory identity store of
// the standalone mode.
func newCoordinator(workers int) (*coordinator.Coordinator, *settings.Store) {
	persist := settings.NewStore(flagDataDir)
	coord := coordinator.New(coordinator.Config{
		Store:   store.NewMemStore(),
		Persist: persist,
		Workers: workers,
	})
	return coord, persist
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
