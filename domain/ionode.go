// Package domain collects the interfaces shared across the daemon's
// packages, in the same spirit as the teacher's domain package: concrete
// implementations live next to the concern they serve (sysio, sysfs,
// inotify, uevent, modstate, watcher, engine); domain only carries the
// interface boundary so packages can be unit-tested against fakes. Unlike
// the teacher's container services, nothing here needs a deferred Setup()
// call after construction — every NewXxx constructor in this daemon returns
// a fully wired value, since there's no circular service dependency to
// break.
package domain

// IOServiceType selects which backing filesystem an IOService uses.
type IOServiceType int

const (
	// IOOsFileService backs IOnodes with the real OS filesystem.
	IOOsFileService IOServiceType = iota
	// IOMemFileService backs IOnodes with an in-memory filesystem, for tests.
	IOMemFileService
)

// IOServiceIface constructs IOnodes bound to one backing filesystem. Mirrors
// the teacher's sysio.ioFileService, generalized from "emulated procfs/sysfs
// resource" to "control file or real sysfs node".
type IOServiceIface interface {
	NewIOnode(path string) IOnodeIface
	GetServiceType() IOServiceType
}

// IOnodeIface is a thin wrapper over a single file path, reproducing the
// teacher's IOnodeFile surface trimmed to what the Sysfs Writer and Module
// State Manager actually use (no directory listing, no namespace-inode
// lookups — those belong to the container-emulation domain this repo does
// not carry).
type IOnodeIface interface {
	Path() string
	Exists() bool
	ReadFile() (string, error)
	WriteFile(content string) error
	Remove() error
}
