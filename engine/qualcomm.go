// Package engine implements the Qualcomm and MediaTek Engines (spec.md
// §4.7, §4.8): the uevent-driven workers that keep each SoC family's
// pd-verified node at "1" and, on Qualcomm, detect and force-renegotiate
// the MIPPS pseudo-protocol. Grounded on
// original_source/src/monitoring/threads/pd_verified.rs and
// pd_adapter_verified.rs for the charging-session bookkeeping, adapted to
// spec.md §4.7's final USB_TYPE_PATH-probe detection mechanism (the
// original Rust snapshots in the retrieval pack instead polled
// PD_VERIFIED_PATH directly; spec.md supersedes that).
package engine

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/Seyud/FreePPS/config"
	"github.com/Seyud/FreePPS/domain"
	"github.com/Seyud/FreePPS/ferrors"
	"github.com/Seyud/FreePPS/sysfs"
	"github.com/Seyud/FreePPS/uevent"
)

// probeDelay is the empirical vendor PD handshake window (spec.md §4.7 step
// 3: "matches the vendor PD handshake window").
const probeDelay = 3270 * time.Millisecond

// mippsPulseGap is the sleep between each step of the MIPPS suspend/clear/
// resume pulse (spec.md §4.7 steps under MIPPS detected).
const mippsPulseGap = time.Second

// mippsBlackout is how long a Charging uevent is ignored after a MIPPS
// pulse begins (spec.md §4.7: "blackout covers the entire pulse and
// recovery").
const mippsBlackout = 5 * time.Second

// suspendedPollInterval is how long the engine sleeps between checks of
// free_enabled while the module is disabled (spec.md §4.7: "sleep 200 ms,
// and continue").
const suspendedPollInterval = 200 * time.Millisecond

// interruptionSummaryInterval bounds how often EINTR/EAGAIN counters are
// logged (spec.md §4.7: "at most every 10 hours").
const interruptionSummaryInterval = 10 * time.Hour

// epollErrorRetryDelay is the sleep after an unexpected epoll_wait error
// (spec.md §4.7 failure semantics).
const epollErrorRetryDelay = 5 * time.Second

// QualcommEngine keeps PD_VERIFIED_PATH asserted and runs the MIPPS
// detection/pulse sequence in auto-protocol mode.
type QualcommEngine struct {
	ios         domain.IOServiceIface
	paths       config.Paths
	writer      *sysfs.Writer
	freeEnabled *atomic.Bool
	log         logrus.FieldLogger

	chargingSessionActive bool
	mippsSessionHandled   bool
	ignoreChargingUntil   time.Time

	eintrCount  uint64
	eagainCount uint64
	lastSummary time.Time
}

// NewQualcommEngine builds a QualcommEngine.
func NewQualcommEngine(ios domain.IOServiceIface, paths config.Paths, writer *sysfs.Writer, freeEnabled *atomic.Bool, log logrus.FieldLogger) *QualcommEngine {
	return &QualcommEngine{ios: ios, paths: paths, writer: writer, freeEnabled: freeEnabled, log: log}
}

// Run blocks consuming uevents until stop is closed.
func (e *QualcommEngine) Run(stop <-chan struct{}) error {
	src, err := uevent.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	wasSuspended := false
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if !e.freeEnabled.Load() {
			if !wasSuspended {
				e.log.Info("qualcomm engine: module disabled, suspending uevent consumption")
				wasSuspended = true
			}
			time.Sleep(suspendedPollInterval)
			continue
		}
		wasSuspended = false

		n, err := src.Wait(-1)
		if err != nil {
			e.recordWaitError(err)
			continue
		}
		if n == 0 {
			continue
		}

		msg, err := src.RecvNonblocking()
		if err != nil {
			e.log.Warnf("qualcomm engine: recv failed: %v", err)
			continue
		}
		if msg == nil {
			continue
		}

		ue := uevent.Parse(msg)
		autoExists := e.ios.NewIOnode(e.paths.AutoFile).Exists()
		if autoExists {
			e.runAutoProtocol(ue)
		} else {
			e.runLocked(ue)
		}
	}
}

func (e *QualcommEngine) recordWaitError(err error) {
	if ferrors.IsInterruption(err) {
		if errors.Is(err, unix.EAGAIN) {
			e.eagainCount++
		} else {
			e.eintrCount++
		}
		if time.Since(e.lastSummary) >= interruptionSummaryInterval {
			e.log.Infof("qualcomm engine: %d EINTR, %d EAGAIN since last summary", e.eintrCount, e.eagainCount)
			e.lastSummary = time.Now()
			e.eintrCount, e.eagainCount = 0, 0
		}
		return
	}
	e.log.Warnf("qualcomm engine: epoll_wait failed: %v", err)
	time.Sleep(epollErrorRetryDelay)
}

func (e *QualcommEngine) runLocked(ue uevent.Uevent) {
	triggered := false
	if ue.IsPowerSupplyEvent {
		triggered = true
	}
	if ue.Status == uevent.StatusDischarging && e.chargingSessionActive {
		e.chargingSessionActive = false
		triggered = true
	}
	if ue.Status == uevent.StatusCharging && !e.chargingSessionActive {
		e.chargingSessionActive = true
	}

	if !triggered {
		return
	}
	e.reassertPdVerified()
}

func (e *QualcommEngine) runAutoProtocol(ue uevent.Uevent) {
	if !e.ignoreChargingUntil.IsZero() && time.Now().After(e.ignoreChargingUntil) {
		e.ignoreChargingUntil = time.Time{}
	}
	inBlackout := !e.ignoreChargingUntil.IsZero() && time.Now().Before(e.ignoreChargingUntil)

	if ue.IsPowerSupplyEvent && !e.mippsSessionHandled && !inBlackout {
		e.reassertPdVerified()
	}

	if ue.Status == uevent.StatusCharging && !e.chargingSessionActive && !inBlackout {
		e.chargingSessionActive = true
		if e.mippsSessionHandled {
			e.log.Info("qualcomm engine: charging session already handled this cycle, skipping probe")
			return
		}

		time.Sleep(probeDelay)
		usbType, err := e.writer.Read(e.paths.UsbTypePath)
		if err != nil {
			e.log.Warnf("qualcomm engine: failed to read usb type: %v", err)
			return
		}

		switch {
		case strings.Contains(usbType, "[PD]") && strings.Contains(usbType, "PD_PPS"):
			e.log.Info("判定为MIPPS协议")
			e.runMippsPulse()
		case strings.Contains(usbType, "[PD_PPS]"):
			e.log.Info("判定为PPS协议")
		default:
			e.log.Warnf("qualcomm engine: unrecognized usb type %q", usbType)
		}
		return
	}

	if ue.Status == uevent.StatusDischarging && e.chargingSessionActive {
		e.chargingSessionActive = false
		e.mippsSessionHandled = false
	}
}

func (e *QualcommEngine) runMippsPulse() {
	e.mippsSessionHandled = true
	e.ignoreChargingUntil = time.Now().Add(mippsBlackout)

	if !e.writer.Exists(e.paths.InputSuspendPath) {
		e.log.Warnf("qualcomm engine: %s missing, skipping MIPPS pulse", e.paths.InputSuspendPath)
		e.chargingSessionActive = false
		return
	}

	if err := e.writer.Write(e.paths.InputSuspendPath, "1"); err != nil {
		e.log.Warnf("qualcomm engine: %v", err)
	}
	time.Sleep(mippsPulseGap)
	if err := e.writer.Write(e.paths.PdVerifiedPath, "0"); err != nil {
		e.log.Warnf("qualcomm engine: %v", err)
	}
	time.Sleep(mippsPulseGap)
	if err := e.writer.Write(e.paths.InputSuspendPath, "0"); err != nil {
		e.log.Warnf("qualcomm engine: %v", err)
	}

	e.chargingSessionActive = false
}

func (e *QualcommEngine) reassertPdVerified() {
	current, err := e.writer.Read(e.paths.PdVerifiedPath)
	if err != nil {
		e.log.Warnf("qualcomm engine: %v", err)
		return
	}
	if current == "0" {
		if err := e.writer.WriteVerified(e.paths.PdVerifiedPath, "1"); err != nil {
			e.log.Warnf("qualcomm engine: %v", err)
		}
	}
}
