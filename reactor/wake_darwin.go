//go:build darwin

package reactor

import "golang.org/x/sys/unix"

// createWakeFD creates the OS-level signal used to make the wake channel
// readable by the notifier. Darwin has no eventfd, so this is a
// self-pipe: both ends nonblocking, close-on-exec.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}

func writeWakeFD(fd int) error {
	var buf [1]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	return err
}

func drainWakeFD(fd int) {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeFD(readFD, writeFD int) {
	_ = unix.Close(readFD)
	if writeFD != readFD {
		_ = unix.Close(writeFD)
	}
}
