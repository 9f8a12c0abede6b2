// Package inotify implements the Inotify Handle (spec.md §4.2): a scoped
// resource pairing one inotify descriptor with one epoll descriptor so
// wait_events(timeout_ms) gets interruption-safe, timed blocking that a bare
// inotify read() can't offer. Built directly on golang.org/x/sys/unix, the
// same raw-syscall layer the teacher reaches for in seccomp/tracer.go and
// nsenter — fsnotify's higher-level channel API does not expose the
// epoll_wait/EINTR distinction spec.md §4.2 and §8's property 3-4 require.
package inotify

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/Seyud/FreePPS/ferrors"
)

// Watch mask bits, re-exported from golang.org/x/sys/unix so callers don't
// need their own import of it just to build a mask (spec.md §4.2: "mask is a
// bitset over {MODIFY, CLOSE_WRITE, CREATE, DELETE}").
const (
	Modify     = unix.IN_MODIFY
	CloseWrite = unix.IN_CLOSE_WRITE
	Create     = unix.IN_CREATE
	Delete     = unix.IN_DELETE
)

// inotifyEventHeaderSize is sizeof(struct inotify_event) without the
// variable-length name: wd (int32) + mask (uint32) + cookie (uint32) + len
// (uint32).
const inotifyEventHeaderSize = 16

// Event is one parsed inotify_event record (spec.md §4.2: "a fixed-size
// header (wd, mask, cookie, len) followed by a variable-length name when
// len > 0").
type Event struct {
	Wd     int32
	Mask   uint32
	Cookie uint32
	Name   string
}

// Handle owns one inotify descriptor and one epoll descriptor, released
// together on Close (spec.md §3 invariant 4: "no descriptor outlives its
// owning worker").
type Handle struct {
	inotifyFd int
	epollFd   int
}

// New creates an inotify descriptor, an epoll descriptor, and registers the
// former with the latter for readiness notification.
func New() (*Handle, error) {
	inotifyFd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, ferrors.NewInotifyError("inotify_init1 failed", err)
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(inotifyFd)
		return nil, ferrors.NewInotifyError("epoll_create1 failed", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(inotifyFd)}
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, inotifyFd, &ev); err != nil {
		unix.Close(inotifyFd)
		unix.Close(epollFd)
		return nil, ferrors.NewInotifyError("epoll_ctl(ADD) on inotify fd failed", err)
	}

	return &Handle{inotifyFd: inotifyFd, epollFd: epollFd}, nil
}

// AddWatch registers a watch on path for the bits in mask.
func (h *Handle) AddWatch(path string, mask uint32) error {
	_, err := unix.InotifyAddWatch(h.inotifyFd, path, mask)
	if err != nil {
		return ferrors.NewInotifyError(fmt.Sprintf("inotify_add_watch failed for %s", path), err)
	}
	return nil
}

// WaitEvents blocks until the inotify descriptor is readable or timeoutMs
// elapses (-1 blocks indefinitely), returning the number of ready
// descriptors. EINTR/EAGAIN are reported as an *ferrors.InterruptionError so
// callers spin-and-retry rather than treat them as fatal (spec.md §4.2).
func (h *Handle) WaitEvents(timeoutMs int) (int, error) {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(h.epollFd, events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, ferrors.NewInterruptionError(err)
		}
		return 0, ferrors.NewInotifyError("epoll_wait failed", err)
	}
	return n, nil
}

// SetNonblocking toggles O_NONBLOCK on the inotify descriptor. The
// free-file watcher uses this to switch into non-blocking drain mode after
// its 100ms coalescing delay (spec.md §4.5 step c, §9 design note on event
// coalescing), then restores blocking mode.
func (h *Handle) SetNonblocking(nonblocking bool) error {
	if err := unix.SetNonblock(h.inotifyFd, nonblocking); err != nil {
		return ferrors.NewInotifyError("fcntl(O_NONBLOCK) on inotify fd failed", err)
	}
	return nil
}

// ReadEvents drains the inotify descriptor with one bounded read and parses
// every contiguous inotify_event record it contains (spec.md §4.2: "Event
// records are contiguous; advance by header_size + len"). In non-blocking
// mode, EAGAIN (no more queued events) is reported as a nil, nil return
// rather than an error, since it is the expected end of a drain loop.
func (h *Handle) ReadEvents() ([]Event, error) {
	buf := make([]byte, 4096)
	n, err := unix.Read(h.inotifyFd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		if errors.Is(err, unix.EINTR) {
			return nil, ferrors.NewInterruptionError(err)
		}
		return nil, ferrors.NewInotifyError("read on inotify fd failed", err)
	}

	return ParseEvents(buf[:n]), nil
}

// ParseEvents parses a raw byte buffer read from an inotify descriptor into
// its contiguous inotify_event records (spec.md §4.2, §8 invariant around
// record parsing). Exported standalone so tests can exercise the parser
// without a real inotify descriptor.
func ParseEvents(buf []byte) []Event {
	var events []Event
	offset := 0
	for offset+inotifyEventHeaderSize <= len(buf) {
		wd := int32(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		mask := binary.LittleEndian.Uint32(buf[offset+4 : offset+8])
		cookie := binary.LittleEndian.Uint32(buf[offset+8 : offset+12])
		nameLen := binary.LittleEndian.Uint32(buf[offset+12 : offset+16])

		nameStart := offset + inotifyEventHeaderSize
		nameEnd := nameStart + int(nameLen)
		if nameEnd > len(buf) {
			break
		}

		name := ""
		if nameLen > 0 {
			// The kernel NUL-pads the name to a 4-byte boundary; trim at the
			// first NUL.
			raw := buf[nameStart:nameEnd]
			if idx := indexByte(raw, 0); idx >= 0 {
				raw = raw[:idx]
			}
			name = string(raw)
		}

		events = append(events, Event{Wd: wd, Mask: mask, Cookie: cookie, Name: name})
		offset = nameEnd
	}
	return events
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Close releases the epoll and inotify descriptors.
func (h *Handle) Close() error {
	var errs []error
	if err := unix.Close(h.epollFd); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(h.inotifyFd); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing inotify handle: %v", errs)
	}
	return nil
}
