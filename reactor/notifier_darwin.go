//go:build darwin

package reactor

import "golang.org/x/sys/unix"

// kqueueNotifier implements notifier on Darwin/BSD via kqueue. Like
// epollNotifier, it is owned and touched by exactly one goroutine.
type kqueueNotifier struct {
	kq       int
	eventBuf []unix.Kevent_t
	out      []readyEvent
	// userData by fd, since kqueue events carry back only Ident (the fd),
	// not an arbitrary user payload.
	dataByFd map[int]uint64
	fds      fdRegistry
}

func newNotifier() notifier {
	return &kqueueNotifier{
		eventBuf: make([]unix.Kevent_t, 256),
		dataByFd: make(map[int]uint64),
		fds:      newFDRegistry(),
	}
}

func (p *kqueueNotifier) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	return nil
}

func (p *kqueueNotifier) add(fd int, interest Interest, edgeTriggered bool, userData uint64) error {
	if err := p.fds.checkAdd(fd); err != nil {
		return err
	}
	if err := p.applyInterest(fd, 0, interest, edgeTriggered); err != nil {
		return err
	}
	p.dataByFd[fd] = userData
	p.fds.add(fd)
	return nil
}

func (p *kqueueNotifier) modify(fd int, interest Interest, userData uint64) error {
	if err := p.fds.checkTracked(fd); err != nil {
		return err
	}
	// kqueue has no direct "modify"; no previous interest is tracked here
	// because applyInterest re-adds each wanted filter with EV_ADD (which
	// replaces an existing one) and deletes each unwanted filter, so the
	// result matches the new mask whatever was registered before.
	if err := p.applyInterest(fd, 0, interest, edgeTriggered(interest)); err != nil {
		return err
	}
	p.dataByFd[fd] = userData
	return nil
}

func edgeTriggered(Interest) bool { return true }

func (p *kqueueNotifier) applyInterest(fd int, _ uint16, interest Interest, edge bool) error {
	var flags uint16 = unix.EV_ADD | unix.EV_ENABLE
	if edge {
		flags |= unix.EV_CLEAR
	}
	var kevs []unix.Kevent_t
	if interest&ReadInterest != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	} else {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if interest&WriteInterest != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	} else {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	for _, kev := range kevs {
		if kev.Flags == unix.EV_DELETE {
			_, _ = unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
			continue
		}
		if _, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *kqueueNotifier) remove(fd int) error {
	if err := p.fds.checkTracked(fd); err != nil {
		return err
	}
	delete(p.dataByFd, fd)
	p.fds.remove(fd)
	kevs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kq, kevs, nil, nil)
	return err
}

func (p *kqueueNotifier) wait(timeoutMs int) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64(timeoutMs%1000) * 1_000_000}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		kev := &p.eventBuf[i]
		data, ok := p.dataByFd[int(kev.Ident)]
		if !ok {
			continue
		}
		var flags ReadyFlags
		switch kev.Filter {
		case unix.EVFILT_READ:
			flags |= Readable
		case unix.EVFILT_WRITE:
			flags |= Writable
		}
		if kev.Flags&unix.EV_EOF != 0 {
			flags |= HangUp
		}
		if kev.Flags&unix.EV_ERROR != 0 {
			flags |= ErrorFlag
		}
		p.out = append(p.out, readyEvent{userData: data, flags: flags})
	}
	return p.out, nil
}

func (p *kqueueNotifier) close() error {
	return unix.Close(p.kq)
}
