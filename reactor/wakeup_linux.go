//go:build linux

package reactor

import "golang.org/x/sys/unix"

// createWakeFD creates an eventfd used to break the reactor out of a
// blocking PollIO call from another goroutine, grounded on
// eventloop/wakeup_linux.go's identical eventfd-based self-wake.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}

func writeWake(writeFD int) {
	buf := [8]byte{1}
	_, _ = unix.Write(writeFD, buf[:])
}

func drainWake(readFD int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFD, buf[:]); err != nil {
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
