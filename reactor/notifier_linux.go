//go:build linux

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// epollEventData returns a pointer to the 8-byte epoll_data union embedded
// in ev (the contiguous Fd+Pad fields), letting us stash an arbitrary
// uint64 instead of just a raw fd.
func epollEventData(ev *unix.EpollEvent) unsafe.Pointer {
	return unsafe.Pointer(&ev.Fd)
}

// epollNotifier implements notifier on Linux via epoll. It is touched only
// by the reactor goroutine that owns it, so unlike the registration table
// in a general-purpose multi-threaded poller, no internal locking is
// needed — the single-threaded-per-reactor concurrency model (spec §5)
// makes that safe.
type epollNotifier struct {
	epfd     int
	eventBuf []unix.EpollEvent
	out      []readyEvent
	fds      fdRegistry
}

func newNotifier() notifier {
	return &epollNotifier{eventBuf: make([]unix.EpollEvent, 256), fds: newFDRegistry()}
}

func (p *epollNotifier) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = fd
	return nil
}

func (p *epollNotifier) add(fd int, interest Interest, edgeTriggered bool, userData uint64) error {
	if err := p.fds.checkAdd(fd); err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(interest, edgeTriggered)}
	*(*uint64)(epollEventData(&ev)) = userData
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	p.fds.add(fd)
	return nil
}

func (p *epollNotifier) modify(fd int, interest Interest, userData uint64) error {
	if err := p.fds.checkTracked(fd); err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(interest, true)}
	*(*uint64)(epollEventData(&ev)) = userData
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollNotifier) remove(fd int) error {
	if err := p.fds.checkTracked(fd); err != nil {
		return err
	}
	p.fds.remove(fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollNotifier) wait(timeoutMs int) ([]readyEvent, error) {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		data := *(*uint64)(epollEventData(ev))
		p.out = append(p.out, readyEvent{userData: data, flags: epollToEvents(ev.Events)})
	}
	return p.out, nil
}

func (p *epollNotifier) close() error {
	return unix.Close(p.epfd)
}

func eventsToEpoll(interest Interest, edgeTriggered bool) uint32 {
	var e uint32
	if interest&ReadInterest != 0 {
		e |= unix.EPOLLIN
	}
	if interest&WriteInterest != 0 {
		e |= unix.EPOLLOUT
	}
	if edgeTriggered {
		e |= unix.EPOLLET
	}
	return e
}

func epollToEvents(e uint32) ReadyFlags {
	var f ReadyFlags
	if e&unix.EPOLLIN != 0 {
		f |= Readable
	}
	if e&unix.EPOLLOUT != 0 {
		f |= Writable
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		f |= HangUp
	}
	if e&unix.EPOLLERR != 0 {
		f |= ErrorFlag
	}
	return f
}
