package ftpserver

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// Control marks passive listener sockets reusable so a port of the passive
// range can be rebound while a previous transfer's socket lingers in
// TIME_WAIT.
func Control(network, address string, c syscall.RawConn) error {
	var errSetOpts error

	err := c.Control(func(fd uintptr) {
		errSetOpts = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}

	return errSetOpts
}
