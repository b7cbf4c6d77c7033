package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dirsync/internal/api"
	"dirsync/internal/settings"
	"dirsync/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher submits an automatic dry-run whenever a tenant's
// settings file changes on disk, so operators editing settings.yaml by
// hand get a change plan without touching the CLI. Events are debounced
// per tenant; editors tend to fire several writes per save.
type SettingsWatcher struct {
	coord    *Coordinator
	persist  *settings.Store
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSettingsWatcher creates a watcher bound to the coordinator's
// settings store.
func NewSettingsWatcher(coord *Coordinator, persist *settings.Store, debounce time.Duration) *SettingsWatcher {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &SettingsWatcher{
		coord:    coord,
		persist:  persist,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches until the context ends. The settings root and every
// tenant directory below it are watched; tenant directories created
// later are picked up from their create events.
func (w *SettingsWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	root := w.persist.Root()
	if err := os.MkdirAll(root, 0o700); err != nil {
		return err
	}
	if err := watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				logging.Warn("SettingsWatcher", "Could not watch %s: %v", entry.Name(), err)
			}
		}
	}

	logging.Info("SettingsWatcher", "Watching %s", root)
	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("SettingsWatcher", "Watch error: %v", err)
		}
	}
}

func (w *SettingsWatcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				logging.Warn("SettingsWatcher", "Could not watch %s: %v", event.Name, err)
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}
	tenantID := filepath.Base(filepath.Dir(event.Name))
	if w.persist.SettingsPath(tenantID) != event.Name {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[tenantID]; ok {
		timer.Stop()
	}
	w.timers[tenantID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, tenantID)
		w.mu.Unlock()
		w.submitPlan(tenantID)
	})
}

func (w *SettingsWatcher) submitPlan(tenantID string) {
	logging.Info("SettingsWatcher", "Settings of tenant %s changed, submitting dry-run", tenantID)
	if _, err := w.coord.Submit(SubmitRequest{
		Tenant: api.Tenant{ID: tenantID},
		Kind:   api.OpSaveDryRun,
	}); err != nil {
		logging.Warn("SettingsWatcher", "Could not submit dry-run for tenant %s: %v", tenantID, err)
	}
}

func (w *SettingsWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for tenantID, timer := range w.timers {
		timer.Stop()
		delete(w.timers, tenantID)
	}
}
