//go:build linux || freebsd || darwin || aix || dragonfly || netbsd || openbsd
// +build linux freebsd darwin aix dragonfly netbsd openbsd

package ftpserver

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Control marks passive listener sockets reusable so a port of the passive
// range can be rebound while a previous transfer's socket lingers in
// TIME_WAIT.
func Control(_, _ string, c syscall.RawConn) error {
	var errSetOpts error

	// SO_REUSEADDR only: a live listener must still make the bind fail so
	// the port scan moves on, but a socket in TIME_WAIT must not.
	err := c.Control(func(unixFd uintptr) {
		errSetOpts = unix.SetsockoptInt(int(unixFd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("unable to set control options: %w", err)
	}

	if errSetOpts != nil {
		errSetOpts = fmt.Errorf("unable to set control options: %w", errSetOpts)
	}

	return errSetOpts
}
