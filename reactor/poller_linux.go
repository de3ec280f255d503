//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller. Level-triggered, so a job that leaves data
// unserviced is invoked again on the next wait. An eventfd registered
// alongside the sockets interrupts a blocked wait.

package reactor

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-invert/api"
)

type epollPoller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll ctl add eventfd")
	}
	return &epollPoller{epfd: epfd, wakefd: wakefd, raw: make([]unix.EpollEvent, maxEvents)}, nil
}

func epollEvents(readable, writable bool) uint32 {
	var ev uint32
	if readable {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if writable {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// readinessOf translates an epoll event mask. A hang-up is an orderly
// end of stream, not a failure: it is reported as readable so the owner
// drains what is still queued and then reads EOF. Only EPOLLERR marks the
// socket errored.
func readinessOf(fd int32, events uint32) readiness {
	return readiness{
		handle:   api.Handle(fd),
		readable: events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP) != 0,
		writable: events&unix.EPOLLOUT != 0,
		errored:  events&unix.EPOLLERR != 0,
	}
}

func (p *epollPoller) ctl(op int, h api.Handle, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollEvents(readable, writable), Fd: int32(h)}
	return unix.EpollCtl(p.epfd, op, int(h), &ev)
}

func (p *epollPoller) add(h api.Handle, readable, writable bool) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, h, readable, writable); err != nil {
		return errors.Wrap(err, "epoll ctl add")
	}
	return nil
}

func (p *epollPoller) modify(h api.Handle, readable, writable bool) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, h, readable, writable); err != nil {
		return errors.Wrap(err, "epoll ctl mod")
	}
	return nil
}

func (p *epollPoller) remove(h api.Handle) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(h), nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return errors.Wrap(err, "epoll ctl del")
	}
	return nil
}

func (p *epollPoller) wait(out []readiness, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	raw := p.raw
	if len(out) < len(raw) {
		raw = raw[:len(out)]
	}
	n, err := unix.EpollWait(p.epfd, raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, errors.Wrap(err, "epoll wait")
	}

	k := 0
	for _, ev := range raw[:n] {
		if int(ev.Fd) == p.wakefd {
			var buf [8]byte
			_, _ = unix.Read(p.wakefd, buf[:])
			continue
		}
		out[k] = readinessOf(ev.Fd, ev.Events)
		k++
	}
	return k, nil
}

func (p *epollPoller) wake() error {
	one := [8]byte{1}
	if _, err := unix.Write(p.wakefd, one[:]); err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "eventfd write")
	}
	return nil
}

func (p *epollPoller) close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return errors.Wrap(err1, "close eventfd")
	}
	if err2 != nil {
		return errors.Wrap(err2, "close epoll")
	}
	return nil
}
