// Package uevent implements the Uevent Source (spec.md §4.3): a
// NETLINK_KOBJECT_UEVENT socket bound to the kernel broadcast group, paired
// with its own epoll descriptor so engines get the same interruption-safe
// wait_events semantics as the Inotify Handle (spec.md §4.7's epoll_wait
// failure taxonomy). Grounded on the teacher's raw-syscall style plus the
// socket/bind/recv shape from the canonical-snapd udev-netlink reference in
// the retrieval pack.
package uevent

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Seyud/FreePPS/ferrors"
)

// broadcastGroup is the kernel uevent broadcast multicast group (spec.md
// §4.3: "binds it to group 1, the broadcast group").
const broadcastGroup = 1

// Source owns one NETLINK_KOBJECT_UEVENT socket and one epoll descriptor
// watching it.
type Source struct {
	sockFd  int
	epollFd int
}

// Open creates and binds the netlink socket, then wires it into a fresh
// epoll descriptor.
func Open() (*Source, error) {
	sockFd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, ferrors.NewInotifyError("netlink socket() failed", err)
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: 0, Groups: broadcastGroup}
	if err := unix.Bind(sockFd, addr); err != nil {
		unix.Close(sockFd)
		return nil, ferrors.NewInotifyError("netlink bind() failed", err)
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(sockFd)
		return nil, ferrors.NewInotifyError("epoll_create1 failed", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLPRI, Fd: int32(sockFd)}
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, sockFd, &ev); err != nil {
		unix.Close(sockFd)
		unix.Close(epollFd)
		return nil, ferrors.NewInotifyError("epoll_ctl(ADD) on uevent socket failed", err)
	}

	return &Source{sockFd: sockFd, epollFd: epollFd}, nil
}

// Wait blocks until the netlink socket is readable or timeoutMs elapses (-1
// blocks indefinitely). EINTR/EAGAIN surface as *ferrors.InterruptionError.
func (s *Source) Wait(timeoutMs int) (int, error) {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(s.epollFd, events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, ferrors.NewInterruptionError(err)
		}
		return 0, ferrors.NewInotifyError("epoll_wait on uevent socket failed", err)
	}
	return n, nil
}

// RecvNonblocking reads up to one uevent datagram (spec.md §4.3: "reads up
// to one datagram ... no reassembly is performed; each datagram is
// self-contained").
func (s *Source) RecvNonblocking() ([]byte, error) {
	buf := make([]byte, 4096)
	n, _, err := unix.Recvfrom(s.sockFd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, fmt.Errorf("recvfrom on uevent socket: %w", err)
	}
	return buf[:n], nil
}

// Close releases the epoll and netlink-socket descriptors.
func (s *Source) Close() error {
	var errs []error
	if err := unix.Close(s.epollFd); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(s.sockFd); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing uevent source: %v", errs)
	}
	return nil
}

// Uevent is the subset of a parsed kernel uevent datagram this daemon acts
// on (spec.md §4.3).
type Uevent struct {
	// IsPowerSupplyEvent is true when "POWER_SUPPLY" appears anywhere in the
	// message.
	IsPowerSupplyEvent bool
	// IsPdAuthEvent is true when the kernel's (misspelled) "pd_verifed" or
	// "usbpd_verifed" substring appears anywhere in the message. The
	// misspelling is preserved bit-exactly per spec.md §9.
	IsPdAuthEvent bool
	// Status is the value of POWER_SUPPLY_STATUS, or "" if absent.
	Status string
}

// Charging/Discharging/etc. status values (spec.md §4.3).
const (
	StatusCharging    = "Charging"
	StatusDischarging = "Discharging"
	StatusFull        = "Full"
	StatusNotCharging = "Not charging"
	StatusUnknown     = "Unknown"
)

// Parse extracts the fields this daemon cares about from a raw uevent
// datagram: a NUL- and newline-separated sequence of KEY=VALUE fields
// (spec.md §4.3, §8 test "Uevent parsing").
func Parse(msg []byte) Uevent {
	text := string(msg)

	ue := Uevent{
		IsPowerSupplyEvent: strings.Contains(text, "POWER_SUPPLY"),
		IsPdAuthEvent:      strings.Contains(text, "pd_verifed") || strings.Contains(text, "usbpd_verifed"),
	}

	for _, field := range splitFields(text) {
		if value, ok := strings.CutPrefix(field, "POWER_SUPPLY_STATUS="); ok {
			ue.Status = value
			break
		}
	}

	return ue
}

func splitFields(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == 0 || r == '\n'
	})
}
