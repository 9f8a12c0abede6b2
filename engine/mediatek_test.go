package engine

import (
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/sysfs"
	"github.com/Seyud/FreePPS/sysio"
	"github.com/Seyud/FreePPS/uevent"
)

func newTestMediatekEngine(t *testing.T) (*MediatekEngine, domain.IOServiceIface, config.Paths) {
	t.Helper()
	ios := sysio.NewIOService(domain.IOMemFileService)
	paths := config.DefaultPaths()
	log := logrus.New()
	log.SetOutput(io.Discard)
	writer := sysfs.NewWriter(ios, log)
	var freeEnabled atomic.Bool
	freeEnabled.Store(true)
	e := NewMediatekEngine(ios, paths, writer, &freeEnabled, log)
	return e, ios, paths
}

func TestMediatekEngine_LockedModeReassertsWhenZero(t *testing.T) {
	e, ios, paths := newTestMediatekEngine(t)
	ios.NewIOnode(paths.PdAdapterVerifiedPath).WriteFile("0")

	e.runLocked(uevent.Uevent{IsPowerSupplyEvent: true})

	content, _ := ios.NewIOnode(paths.PdAdapterVerifiedPath).ReadFile()
	assert.Equal(t, "1", content)
}

func TestMediatekEngine_DetectHandshakeMipps(t *testing.T) {
	e, ios, paths := newTestMediatekEngine(t)
	// Node already reads "1" before the window even starts: the external
	// firmware has completed its own MIPPS handshake.
	ios.NewIOnode(paths.PdAdapterVerifiedPath).WriteFile("1")

	e.detectHandshake()

	content, _ := ios.NewIOnode(paths.PdAdapterVerifiedPath).ReadFile()
	assert.Equal(t, "1", content)
}

func TestMediatekEngine_ChargingSessionTracking(t *testing.T) {
	e, _, _ := newTestMediatekEngine(t)

	e.runLocked(uevent.Uevent{Status: uevent.StatusCharging})
	assert.True(t, e.chargingSessionActive)

	e.runLocked(uevent.Uevent{Status: uevent.StatusDischarging})
	assert.False(t, e.chargingSessionActive)
}
