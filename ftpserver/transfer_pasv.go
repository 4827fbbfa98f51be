package ftpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNoAvailableListeningPort is returned when no port could be found to accept incoming connection
var ErrNoAvailableListeningPort = errors.New("could not find any port to listen to")

// findListenerWithinPortRange binds the first free port of the configured
// range, lowest first.
func (c *clientHandler) findListenerWithinPortRange() (*net.TCPListener, int, error) {
	portRange := c.server.config.PassivePortRange

	listenConfig := net.ListenConfig{
		Control: Control,
	}

	for port := portRange.Start; port <= portRange.End; port++ {
		listener, err := listenConfig.Listen(context.Background(), "tcp4", fmt.Sprintf("0.0.0.0:%d", port))
		if err == nil {
			return listener.(*net.TCPListener), port, nil
		}
	}

	c.logger.Warn(
		"Could not find any free passive port",
		"portRangeStart", portRange.Start,
		"portRangeEnd", portRange.End,
	)

	return nil, 0, ErrNoAvailableListeningPort
}

// getCurrentIP provides the session's local-facing IPv4 address, the one the
// client can dial back for the data connection.
func (c *clientHandler) getCurrentIP() (net.IP, error) {
	addr, ok := c.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, newNetworkError("unexpected control address type", nil)
	}

	ip := addr.IP.To4()
	if ip == nil {
		return nil, newNetworkError(fmt.Sprintf("control address %v is not IPv4", addr.IP), nil)
	}

	return ip, nil
}

// handlePASV binds a listener in the passive range, advertises it, then
// accepts exactly one inbound connection under the data timeout. On success
// the accepted socket becomes the session's data connection; the listener
// never outlives this call.
func (c *clientHandler) handlePASV(_ string) error {
	// A leftover data connection is released before a new negotiation
	c.closeDataConn()

	ip, err := c.getCurrentIP()
	if err != nil {
		c.logger.Error("Could not determine passive address", "err", err)
		c.writeMessage(StatusCannotOpenDataConnection, "Can't open passive connection.")

		return nil
	}

	listener, port, err := c.findListenerWithinPortRange()
	if err != nil {
		c.writeMessage(StatusCannotOpenDataConnection, "Can't open passive connection.")

		return nil
	}

	c.writeMessage(StatusEnteringPASV, fmt.Sprintf(
		"Entering Passive Mode (%d,%d,%d,%d,%d,%d).",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256,
	))

	if err := listener.SetDeadline(time.Now().Add(c.server.config.DataTimeout)); err != nil {
		c.logger.Error("Could not set accept deadline", "err", err)
	}

	conn, err := listener.Accept()

	if errClose := listener.Close(); errClose != nil {
		c.logger.Warn("Problem closing passive listener", "err", errClose)
	}

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.writeMessage(StatusCannotOpenDataConnection, "Data connection timed out.")
		} else {
			c.logger.Error("Passive accept error", "err", err)
			c.writeMessage(StatusCannotOpenDataConnection, "Can't open passive connection.")
		}

		return nil
	}

	c.logger.Debug("Data connection accepted", "remoteAddr", conn.RemoteAddr())
	c.dataConn = conn

	return nil
}
