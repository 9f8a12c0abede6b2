package engine

import (
	"errors"
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

// mediatekHandshakeWindow is how long the MediaTek engine polls the
// adapter node before deciding PPS vs MIPPS (spec.md §4.8: "2.7 s
// external-handshake detection").
const mediatekHandshakeWindow = 2700 * time.Millisecond

// mediatekPollInterval is the polling cadence within that window (spec.md
// §4.8: "polls the adapter node every 100 ms").
const mediatekPollInterval = 100 * time.Millisecond

// MediatekEngine keeps PD_ADAPTER_VERIFIED_PATH asserted and, in
// auto-protocol mode, distinguishes PPS from MIPPS by polling the adapter
// node instead of probing USB_TYPE_PATH (spec.md §4.8).
type MediatekEngine struct {
	ios         domain.IOServiceIface
	paths       config.Paths
	writer      *sysfs.Writer
	freeEnabled *atomic.Bool
	log         logrus.FieldLogger

	chargingSessionActive bool

	eintrCount  uint64
	eagainCount uint64
	lastSummary time.Time
}

// NewMediatekEngine builds a MediatekEngine.
func NewMediatekEngine(ios domain.IOServiceIface, paths config.Paths, writer *sysfs.Writer, freeEnabled *atomic.Bool, log logrus.FieldLogger) *MediatekEngine {
	return &MediatekEngine{ios: ios, paths: paths, writer: writer, freeEnabled: freeEnabled, log: log}
}

// Run blocks consuming uevents until stop is closed.
func (e *MediatekEngine) Run(stop <-chan struct{}) error {
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
				e.log.Info("mediatek engine: module disabled, suspending uevent consumption")
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
			e.log.Warnf("mediatek engine: recv failed: %v", err)
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

func (e *MediatekEngine) recordWaitError(err error) {
	if ferrors.IsInterruption(err) {
		if errors.Is(err, unix.EAGAIN) {
			e.eagainCount++
		} else {
			e.eintrCount++
		}
		if time.Since(e.lastSummary) >= interruptionSummaryInterval {
			e.log.Infof("mediatek engine: %d EINTR, %d EAGAIN since last summary", e.eintrCount, e.eagainCount)
			e.lastSummary = time.Now()
			e.eintrCount, e.eagainCount = 0, 0
		}
		return
	}
	e.log.Warnf("mediatek engine: epoll_wait failed: %v", err)
	time.Sleep(epollErrorRetryDelay)
}

func (e *MediatekEngine) runLocked(ue uevent.Uevent) {
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
	e.reassertPdAdapterVerified()
}

func (e *MediatekEngine) runAutoProtocol(ue uevent.Uevent) {
	if ue.Status == uevent.StatusCharging && !e.chargingSessionActive {
		e.chargingSessionActive = true
		e.detectHandshake()
		return
	}

	if ue.IsPowerSupplyEvent {
		e.reassertPdAdapterVerified()
	}

	if ue.Status == uevent.StatusDischarging && e.chargingSessionActive {
		e.chargingSessionActive = false
	}
}

func (e *MediatekEngine) detectHandshake() {
	deadline := time.Now().Add(mediatekHandshakeWindow)
	for time.Now().Before(deadline) {
		value, err := e.writer.Read(e.paths.PdAdapterVerifiedPath)
		if err != nil {
			e.log.Warnf("mediatek engine: %v", err)
			return
		}
		if value == "1" {
			e.log.Info("判定为MIPPS协议")
			return
		}
		time.Sleep(mediatekPollInterval)
	}

	e.log.Info("判定为PPS协议")
	if err := e.writer.Write(e.paths.PdAdapterVerifiedPath, "1"); err != nil {
		e.log.Warnf("mediatek engine: %v", err)
	}
}

func (e *MediatekEngine) reassertPdAdapterVerified() {
	current, err := e.writer.Read(e.paths.PdAdapterVerifiedPath)
	if err != nil {
		e.log.Warnf("mediatek engine: %v", err)
		return
	}
	if current == "0" {
		if err := e.writer.WriteVerified(e.paths.PdAdapterVerifiedPath, "1"); err != nil {
			e.log.Warnf("mediatek engine: %v", err)
		}
	}
}
