//go:build linux

package reactor

import "golang.org/x/sys/unix"

// createWakeFD creates the OS-level signal used to make the wake channel
// readable by the notifier. On Linux this is a single nonblocking eventfd
// serving as both ends.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func writeWakeFD(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	return err
}

// drainWakeFD consumes the eventfd counter so the notifier stops reporting
// it readable. A single read is always sufficient for eventfd (it resets
// the 64-bit counter to zero atomically), but the loop form keeps this
// symmetric with the Darwin pipe implementation.
func drainWakeFD(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) {
	_ = unix.Close(readFD)
}
