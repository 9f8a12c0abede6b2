package watcher

import (
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/modstate"
	"github.com/Seyud/FreePPS/sysfs"
	"github.com/Seyud/FreePPS/sysio"
)

func testPaths() config.Paths {
	return config.Paths{
		ModuleBaseDir: "/data/adb/modules/FreePPS",
		FreeFile:      "/data/adb/modules/FreePPS/free",
		DisableFile:   "/data/adb/modules/FreePPS/disable",
		AutoFile:      "/data/adb/modules/FreePPS/auto",
		ModuleProp:    "/data/adb/modules/FreePPS/module.prop",
	}
}

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestFreeFileWatcher_ReconcilePublishesEnabledState(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	paths := testPaths()
	log := newTestLogger()
	manager := modstate.NewManager(ios, paths, sysfs.NewWriter(ios, log), log)
	ios.NewIOnode(paths.ModuleProp).WriteFile("id=FreePPS\ndescription=placeholder\n")
	ios.NewIOnode(paths.FreeFile).WriteFile("1")

	var freeEnabled atomic.Bool
	w := NewFreeFileWatcher(ios, paths, manager, &freeEnabled, log)

	w.reconcile()
	assert.True(t, freeEnabled.Load())

	ios.NewIOnode(paths.FreeFile).WriteFile("0")
	w.reconcile()
	assert.False(t, freeEnabled.Load())
}

func TestFreeFileWatcher_ReconcileDefaultsToDisabledWhenFreeFileMissing(t *testing.T) {
	ios := sysio.NewIOService(domain.IOMemFileService)
	paths := testPaths()
	log := newTestLogger()
	manager := modstate.NewManager(ios, paths, sysfs.NewWriter(ios, log), log)

	var freeEnabled atomic.Bool
	freeEnabled.Store(true)
	w := NewFreeFileWatcher(ios, paths, manager, &freeEnabled, log)

	w.reconcile()
	assert.False(t, freeEnabled.Load())
}
