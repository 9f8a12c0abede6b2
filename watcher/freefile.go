// Package watcher implements the Free-file and Disable-file watchers
// (spec.md §4.5, §4.6): long-running workers that turn inotify traffic on
// control files into calls against the Module State Manager, coalescing
// bursts the same way the teacher's containerDB watches coalesce rapid
// writes from a container's own processes.
package watcher

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/ferrors"
	"github.com/Seyud/FreePPS/inotify"
	"github.com/Seyud/FreePPS/modstate"
)

// coalesceDelay is the pause before draining non-blocking, letting a burst
// of closely-spaced writes settle into one read (spec.md §4.5 step c, §9
// design note on event coalescing).
const coalesceDelay = 100 * time.Millisecond

// retryDelay is how long a watcher sleeps after an unexpected (non-EINTR,
// non-EAGAIN) epoll_wait error before looping again (spec.md §4.5, §4.6).
const retryDelay = time.Second

// FreeFileWatcher watches FREE_FILE for content changes and AUTO_FILE for
// existence changes, publishing FREE_FILE's content into a shared atomic so
// the engines can read it without touching disk on every uevent, and
// forwarding every observed change to the Module State Manager.
type FreeFileWatcher struct {
	ios     domain.IOServiceIface
	paths   config.Paths
	manager *modstate.Manager
	log     logrus.FieldLogger

	// FreeEnabled mirrors FREE_FILE's content ("1" == true) for the engines
	// to read without a syscall per uevent.
	FreeEnabled *atomic.Bool
}

// NewFreeFileWatcher builds a FreeFileWatcher. FreeEnabled must be a
// pointer shared with whichever engines consult it.
func NewFreeFileWatcher(ios domain.IOServiceIface, paths config.Paths, manager *modstate.Manager, freeEnabled *atomic.Bool, log logrus.FieldLogger) *FreeFileWatcher {
	return &FreeFileWatcher{ios: ios, paths: paths, manager: manager, FreeEnabled: freeEnabled, log: log}
}

// Run ensures FREE_FILE exists, publishes its initial content, then blocks
// watching it (and AUTO_FILE's parent directory) until stop is closed.
func (w *FreeFileWatcher) Run(stop <-chan struct{}) error {
	initial, err := w.manager.InitializeModule()
	if err != nil {
		return err
	}
	w.publish(initial)

	h, err := inotify.New()
	if err != nil {
		return err
	}
	defer h.Close()

	if err := h.AddWatch(w.paths.FreeFile, uint32(inotify.Modify|inotify.CloseWrite)); err != nil {
		return err
	}
	autoDir := filepath.Dir(w.paths.AutoFile)
	if err := h.AddWatch(autoDir, uint32(inotify.Create|inotify.Delete)); err != nil {
		return err
	}
	autoBase := filepath.Base(w.paths.AutoFile)

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
			w.log.Warnf("free-file watcher: %v", err)
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
			w.log.Warnf("free-file watcher: %v", err)
			time.Sleep(retryDelay)
			continue
		}

		relevant := false
		for _, ev := range events {
			if ev.Name == "" || ev.Name == autoBase {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}

		time.Sleep(coalesceDelay)
		if err := h.SetNonblocking(true); err != nil {
			w.log.Warnf("free-file watcher: %v", err)
		}
		for {
			more, err := h.ReadEvents()
			if err != nil || len(more) == 0 {
				break
			}
		}
		if err := h.SetNonblocking(false); err != nil {
			w.log.Warnf("free-file watcher: %v", err)
		}

		w.reconcile()
	}
}

func (w *FreeFileWatcher) reconcile() {
	node := w.ios.NewIOnode(w.paths.FreeFile)
	content := "0"
	if node.Exists() {
		c, err := node.ReadFile()
		if err != nil {
			w.log.Warnf("free-file watcher: failed to read %s: %v", w.paths.FreeFile, err)
			return
		}
		content = c
	}
	w.publish(content)

	autoExists := w.ios.NewIOnode(w.paths.AutoFile).Exists()
	if err := w.manager.HandleFreeChange(content, autoExists); err != nil {
		w.log.Warnf("free-file watcher: %v", err)
	}
}

func (w *FreeFileWatcher) publish(content string) {
	w.FreeEnabled.Store(content == "1")
}
