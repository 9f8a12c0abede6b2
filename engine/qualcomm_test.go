package engine

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/sysfs"
	"github.com/Seyud/FreePPS/sysio"
	"github.com/Seyud/FreePPS/uevent"
)

func newTestQualcommEngine(t *testing.T) (*QualcommEngine, domain.IOServiceIface, config.Paths) {
	t.Helper()
	ios := sysio.NewIOService(domain.IOMemFileService)
	paths := config.DefaultPaths()
	log := logrus.New()
	log.SetOutput(io.Discard)
	writer := sysfs.NewWriter(ios, log)
	var freeEnabled atomic.Bool
	freeEnabled.Store(true)
	e := NewQualcommEngine(ios, paths, writer, &freeEnabled, log)
	return e, ios, paths
}

func TestQualcommEngine_LockedModeReassertsWhenZero(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("0")

	e.runLocked(uevent.Uevent{IsPowerSupplyEvent: true})

	content, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "1", content)
}

func TestQualcommEngine_LockedModeLeavesOneUntouched(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("1")

	e.runLocked(uevent.Uevent{IsPowerSupplyEvent: true})

	content, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "1", content)
}

func TestQualcommEngine_LockedModeTracksChargingSession(t *testing.T) {
	e, _, _ := newTestQualcommEngine(t)

	e.runLocked(uevent.Uevent{Status: uevent.StatusCharging})
	assert.True(t, e.chargingSessionActive)

	e.runLocked(uevent.Uevent{Status: uevent.StatusDischarging})
	assert.False(t, e.chargingSessionActive)
}

func TestQualcommEngine_MippsPulseWritesExpectedSequence(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.InputSuspendPath).WriteFile("0")
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("1")
	e.chargingSessionActive = true

	e.runMippsPulse()

	suspend, _ := ios.NewIOnode(paths.InputSuspendPath).ReadFile()
	pdVerified, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "0", suspend)
	assert.Equal(t, "0", pdVerified)
	assert.True(t, e.mippsSessionHandled)
	assert.False(t, e.chargingSessionActive)
	assert.True(t, e.ignoreChargingUntil.After(time.Now()))
}

func TestQualcommEngine_MippsPulseSkippedWhenInputSuspendNodeMissing(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("1")
	e.chargingSessionActive = true

	e.runMippsPulse()

	// PD_VERIFIED_PATH must be untouched: the whole pulse is skipped when
	// INPUT_SUSPEND_PATH is absent (spec.md §4.7 step 5: "Missing node →
	// warn, skip the whole pulse").
	pdVerified, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "1", pdVerified)
	assert.False(t, e.chargingSessionActive)
}

func TestQualcommEngine_AutoProtocolBlackoutSuppressesReassertion(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("0")
	e.mippsSessionHandled = true
	e.ignoreChargingUntil = time.Now().Add(5 * time.Second)

	e.runAutoProtocol(uevent.Uevent{IsPowerSupplyEvent: true})

	content, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "0", content, "reassertion must be suppressed inside the MIPPS blackout window")
}

func TestQualcommEngine_AutoProtocolExpiresBlackoutAfterWindow(t *testing.T) {
	e, ios, paths := newTestQualcommEngine(t)
	ios.NewIOnode(paths.PdVerifiedPath).WriteFile("0")
	e.ignoreChargingUntil = time.Now().Add(-time.Second)

	e.runAutoProtocol(uevent.Uevent{IsPowerSupplyEvent: true})

	content, _ := ios.NewIOnode(paths.PdVerifiedPath).ReadFile()
	assert.Equal(t, "1", content)
	assert.True(t, e.ignoreChargingUntil.IsZero())
}

func TestQualcommEngine_DischargingClearsMippsLatch(t *testing.T) {
	e, _, _ := newTestQualcommEngine(t)
	e.chargingSessionActive = true
	e.mippsSessionHandled = true

	e.runAutoProtocol(uevent.Uevent{Status: uevent.StatusDischarging})

	assert.False(t, e.chargingSessionActive)
	assert.False(t, e.mippsSessionHandled)
}
