// Package supervisor implements the Supervisor (spec.md §4.9): it wires
// the stop-flag/signal handling, decides once at startup which engines can
// run on this device, and owns graceful shutdown. The shared
// atomic-pointer-to-stop-flag shape mirrors spec.md §9's design note even
// though Go's os/signal delivery (a channel drained on an ordinary
// goroutine) doesn't need async-signal-safety the way a C handler would.
package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/engine"
	"github.com/Seyud/FreePPS/modstate"
	"github.com/Seyud/FreePPS/sysfs"
	"github.com/Seyud/FreePPS/watcher"
)

// mainLoopInterval is how often the supervisor wakes to observe the stop
// flag once all workers are running (spec.md §4.9).
const mainLoopInterval = time.Second

// worker is anything the supervisor spawns and later joins.
type worker interface {
	Run(stop <-chan struct{}) error
}

// Supervisor owns the stop flag, the signal handler, and the set of
// running workers.
type Supervisor struct {
	ios   domain.IOServiceIface
	paths config.Paths
	log   logrus.FieldLogger

	stopFlag atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup
}

// stopFlagPtr is a package-level pointer to the active Supervisor's stop
// flag, mirroring spec.md §9's "static atomic pointer" shape so the signal
// handler can reach it without a closure capturing anything beyond a plain
// pointer.
var stopFlagPtr atomic.Pointer[atomic.Bool]

// New builds a Supervisor.
func New(ios domain.IOServiceIface, paths config.Paths, log logrus.FieldLogger) *Supervisor {
	s := &Supervisor{ios: ios, paths: paths, log: log, stopCh: make(chan struct{})}
	stopFlagPtr.Store(&s.stopFlag)
	return s
}

// Run installs signal handlers, spawns every applicable worker, and blocks
// until a stop signal arrives and every worker has been joined.
func (s *Supervisor) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		s.log.Info("supervisor: received shutdown signal")
		stopFlagPtr.Load().Store(true)
	}()

	writer := sysfs.NewWriter(s.ios, s.log)
	manager := modstate.NewManager(s.ios, s.paths, writer, s.log)
	var freeEnabled atomic.Bool

	if _, err := manager.InitializeModule(); err != nil {
		s.log.Warnf("supervisor: module initialization failed: %v", err)
	}

	freeWatcher := watcher.NewFreeFileWatcher(s.ios, s.paths, manager, &freeEnabled, s.log)
	disableWatcher := watcher.NewDisableFileWatcher(s.ios, s.paths, manager, s.log)

	s.spawn(freeWatcher)
	s.spawn(disableWatcher)

	if s.ios.NewIOnode(s.paths.PdVerifiedPath).Exists() {
		s.log.Info("supervisor: qualcomm pd-verified node present at boot, starting qualcomm engine")
		s.spawn(engine.NewQualcommEngine(s.ios, s.paths, writer, &freeEnabled, s.log))
	} else {
		s.log.Info("supervisor: qualcomm pd-verified node absent at boot, qualcomm engine will not run")
	}

	if s.ios.NewIOnode(s.paths.PdAdapterVerifiedPath).Exists() {
		s.log.Info("supervisor: mediatek adapter-verified node present at boot, starting mediatek engine")
		s.spawn(engine.NewMediatekEngine(s.ios, s.paths, writer, &freeEnabled, s.log))
	} else {
		s.log.Info("supervisor: mediatek adapter-verified node absent at boot, mediatek engine will not run")
	}

	for !s.stopFlag.Load() {
		time.Sleep(mainLoopInterval)
	}

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("supervisor: all workers joined, exiting")
	return nil
}

func (s *Supervisor) spawn(w worker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := w.Run(s.stopCh); err != nil {
			s.log.Errorf("supervisor: worker exited with error: %v", err)
		}
	}()
}

func (s *Supervisor) requestStop() {
	s.stopFlag.Store(true)
}
