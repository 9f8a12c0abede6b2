// Package config holds the daemon's filesystem contract: the control-file
// and sysfs paths named in spec.md §6, plus the module.prop status-prefix
// strings. There is no flag or env-parsing layer (spec.md §6: "CLI: no
// flags"; spec.md §1: "no configuration beyond the existence/contents of a
// handful of control files") — Paths is a plain struct so unit tests can
// relocate the whole tree under an afero.MemMapFs-rooted temp path instead of
// touching /data/adb or /sys.
package config

const moduleBasePath = "/data/adb/modules/FreePPS"

// Paths is the full set of filesystem locations the daemon reads or writes.
// DefaultPaths() returns the real on-device layout from spec.md §6; tests
// construct their own Paths pointed at a scratch directory.
type Paths struct {
	// Control files, owned and rewritten by this daemon.
	ModuleBaseDir string
	FreeFile      string
	DisableFile   string
	AutoFile      string
	ModuleProp    string

	// Kernel-owned sysfs nodes.
	PdVerifiedPath        string
	PdAdapterVerifiedPath string
	InputSuspendPath      string
	UsbTypePath           string
}

// DefaultPaths returns the real device paths named in spec.md §6.
func DefaultPaths() Paths {
	return Paths{
		ModuleBaseDir:         moduleBasePath,
		FreeFile:              moduleBasePath + "/free",
		DisableFile:           moduleBasePath + "/disable",
		AutoFile:              moduleBasePath + "/auto",
		ModuleProp:            moduleBasePath + "/module.prop",
		PdVerifiedPath:        "/sys/class/qcom-battery/pd_verifed",
		PdAdapterVerifiedPath: "/sys/class/Charging_Adapter/pd_adapter/usbpd_verifed",
		InputSuspendPath:      "/sys/class/qcom-battery/input_suspend",
		UsbTypePath:           "/sys/class/qcom-battery/usb_type",
	}
}

// Mode is the daemon's three-valued module mode (spec.md §3 "Module mode"),
// expressed as an explicit enumeration per spec.md §9's design note rather
// than computed ad-hoc from "free_content + auto_exists" string
// concatenation.
type Mode int

const (
	// Suspended is free="0".
	Suspended Mode = iota
	// LockedPps is free="1" with AUTO_FILE absent.
	LockedPps
	// AutoProtocol is free="1" with AUTO_FILE present.
	AutoProtocol
)

func (m Mode) String() string {
	switch m {
	case Suspended:
		return "suspended"
	case LockedPps:
		return "locked-pps"
	case AutoProtocol:
		return "auto-protocol"
	default:
		return "unknown"
	}
}

// DeriveMode computes the module mode from the raw free-file content and
// whether AUTO_FILE exists, per spec.md §3.
func DeriveMode(freeContent string, autoExists bool) Mode {
	if freeContent != "1" {
		return Suspended
	}
	if autoExists {
		return AutoProtocol
	}
	return LockedPps
}

// StatusPrefix returns the closed-set module.prop description prefix for a
// mode (spec.md §4.4, §6). The glyphs and trailing space are part of the
// contract: the host module manager's UI displays them verbatim.
func (m Mode) StatusPrefix() string {
	switch m {
	case Suspended:
		return "[⏸️PPS已暂停💤] "
	case AutoProtocol:
		return "[🔄协议自动识别💡] "
	default:
		return "[✅锁定PPS支持⚡] "
	}
}

// KnownStatusPrefixes is the closed set of prefixes update_description must
// recognize and strip before prepending a new one (spec.md §4.4, invariant 3
// in §3: "no tag is ever duplicated or stacked").
func KnownStatusPrefixes() []string {
	return []string{
		Suspended.StatusPrefix(),
		LockedPps.StatusPrefix(),
		AutoProtocol.StatusPrefix(),
	}
}
