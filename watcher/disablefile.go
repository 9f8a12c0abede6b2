package watcher

import (
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/ferrors"
	"github.com/Seyud/FreePPS/inotify"
	"github.com/Seyud/FreePPS/modstate"
)

// DisableFileWatcher watches the module's base directory for DISABLE_FILE
// being created or removed, forwarding every observed transition to the
// Module State Manager (spec.md §4.6).
type DisableFileWatcher struct {
	ios     domain.IOServiceIface
	paths   config.Paths
	manager *modstate.Manager
	log     logrus.FieldLogger
}

// NewDisableFileWatcher builds a DisableFileWatcher.
func NewDisableFileWatcher(ios domain.IOServiceIface, paths config.Paths, manager *modstate.Manager, log logrus.FieldLogger) *DisableFileWatcher {
	return &DisableFileWatcher{ios: ios, paths: paths, manager: manager, log: log}
}

// Run watches DISABLE_FILE's existence until stop is closed, reconciling
// FREE_FILE through the Module State Manager on every transition.
func (w *DisableFileWatcher) Run(stop <-chan struct{}) error {
	// Only seed the tracked value here: the Module State Manager already
	// reconciled DISABLE_FILE's existence once during InitializeModule, and
	// calling HandleDisableChange again on every restart would clobber a
	// user's own persisted FREE_FILE="0" whenever DISABLE_FILE happens to be
	// absent (original_source/src/monitoring/threads/disable_file.rs's
	// run_unix only ever seeds this local bool, never calls the handler
	// before an actual transition).
	disableExists := w.ios.NewIOnode(w.paths.DisableFile).Exists()

	h, err := inotify.New()
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.AddWatch(w.paths.ModuleBaseDir, uint32(inotify.Create|inotify.Delete)); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		n, err := h.WaitEvents(1000)
		if err != nil {
			if ferrors.IsInterruption(err) {
				continue
			}
			w.log.Warnf("disable-file watcher: %v", err)
			time.Sleep(retryDelay)
			continue
		}
		if n == 0 {
			continue
		}

		events, err := h.ReadEvents()
		if err != nil {
			if ferrors.IsInterruption(err) {
				continue
			}
			w.log.Warnf("disable-file watcher: %v", err)
			time.Sleep(retryDelay)
			continue
		}

		disableBase := filepath.Base(w.paths.DisableFile)
		touchesDisableFile := false
		for _, ev := range events {
			if ev.Name == disableBase {
				touchesDisableFile = true
				break
			}
		}
		if !touchesDisableFile {
			continue
		}

		exists := w.ios.NewIOnode(w.paths.DisableFile).Exists()
		if exists == disableExists {
			continue
		}
		disableExists = exists

		if err := w.manager.HandleDisableChange(disableExists); err != nil {
			w.log.Warnf("disable-file watcher: %v", err)
		}
	}
}
