package reactor

import "golang.org/x/sys/unix"

// Status is the tri-state result of a non-blocking socket operation.
type Status uint8

const (
	// StatusDone means the operation completed; Result.N holds the byte
	// count (for recv/send) and is otherwise unused.
	StatusDone Status = iota
	// StatusPending means the operation would block; the caller must arm
	// the corresponding interest and await readiness.
	StatusPending
	// StatusError means the operation failed; Result.Err holds the cause.
	StatusError
)

// Result is the outcome of a Socket operation.
type Result struct {
	N      int
	Status Status
	Err    error
}

// Socket is a non-blocking socket wrapper. The reactor never calls
// recv/send itself; it only delivers readiness, and the owning active
// object decides when to retry. hasPendingRecv/hasPendingSend track
// whether a previous partial operation is still outstanding, so the
// object can tell "issue a new op" from "resume waiting" (spec §4.3).
type Socket struct {
	fd             int
	hasPendingRecv bool
	hasPendingSend bool
}

// NewSocket wraps an already-nonblocking fd.
func NewSocket(fd int) *Socket { return &Socket{fd: fd} }

// Fd returns the underlying file descriptor.
func (s *Socket) Fd() int { return s.fd }

// HasPendingRecv reports whether the last Recv returned Pending.
func (s *Socket) HasPendingRecv() bool { return s.hasPendingRecv }

// HasPendingSend reports whether the last Send returned Pending.
func (s *Socket) HasPendingSend() bool { return s.hasPendingSend }

// Recv attempts a single non-blocking read, retrying internally across
// EINTR the way gaio's tryRead does.
func (s *Socket) Recv(buf []byte) Result {
	for {
		n, err := unix.Read(s.fd, buf)
		if err == nil {
			s.hasPendingRecv = false
			// n == 0 means the peer performed an orderly shutdown; the
			// caller observes this as end-of-stream, not as StatusError.
			return Result{N: n, Status: StatusDone}
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.hasPendingRecv = true
			return Result{Status: StatusPending}
		}
		s.hasPendingRecv = false
		return Result{Status: StatusError, Err: err}
	}
}

// Send attempts a single non-blocking write, retrying internally across
// EINTR.
func (s *Socket) Send(buf []byte) Result {
	for {
		n, err := unix.Write(s.fd, buf)
		if err == nil {
			s.hasPendingSend = false
			return Result{N: n, Status: StatusDone}
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.hasPendingSend = true
			return Result{Status: StatusPending}
		}
		s.hasPendingSend = false
		return Result{Status: StatusError, Err: err}
	}
}

// RecvFrom attempts a single non-blocking datagram read.
func (s *Socket) RecvFrom(buf []byte) (Result, unix.Sockaddr) {
	for {
		n, from, err := unix.Recvfrom(s.fd, buf, 0)
		if err == nil {
			s.hasPendingRecv = false
			return Result{N: n, Status: StatusDone}, from
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.hasPendingRecv = true
			return Result{Status: StatusPending}, nil
		}
		s.hasPendingRecv = false
		return Result{Status: StatusError, Err: err}, nil
	}
}

// SendTo attempts a single non-blocking datagram write.
func (s *Socket) SendTo(buf []byte, to unix.Sockaddr) Result {
	for {
		err := unix.Sendto(s.fd, buf, 0, to)
		if err == nil {
			s.hasPendingSend = false
			return Result{N: len(buf), Status: StatusDone}
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.hasPendingSend = true
			return Result{Status: StatusPending}
		}
		s.hasPendingSend = false
		return Result{Status: StatusError, Err: err}
	}
}

// Connect issues a non-blocking connect.
func (s *Socket) Connect(addr unix.Sockaddr) Result {
	err := unix.Connect(s.fd, addr)
	if err == nil {
		return Result{Status: StatusDone}
	}
	if err == unix.EINPROGRESS {
		return Result{Status: StatusPending}
	}
	return Result{Status: StatusError, Err: err}
}

// Accept accepts a single pending connection, returning the new socket.
func (s *Socket) Accept() (*Socket, unix.Sockaddr, Result) {
	for {
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			return NewSocket(nfd), sa, Result{Status: StatusDone}
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil, Result{Status: StatusPending}
		}
		return nil, nil, Result{Status: StatusError, Err: err}
	}
}

// Close closes the underlying fd.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
