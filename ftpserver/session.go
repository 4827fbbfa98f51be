package ftpserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	log "github.com/fclairamb/go-log"
)

// TransferType is the enumerable that represents the supported transfer types
type TransferType int

// Supported transfer types. ASCII performs no newline translation, bytes are
// passed through unchanged.
const (
	TransferTypeBinary TransferType = iota
	TransferTypeASCII
)

// CommandDescription defines which function should be used and if it should be open to anyone or only logged in users
type CommandDescription struct {
	Open            bool                               // Open to clients without auth
	TransferRelated bool                               // Consumes the passive data connection
	Fn              func(*clientHandler, string) error // Function to handle it
}

// This is shared between FtpServer instances as there's no point in making the FTP commands behave differently
// between them.
var commandsMap = map[string]*CommandDescription{ //nolint:gochecknoglobals
	// Authentication
	"USER": {Fn: (*clientHandler).handleUSER, Open: true},
	"PASS": {Fn: (*clientHandler).handlePASS, Open: true},

	// Misc
	"QUIT": {Fn: (*clientHandler).handleQUIT, Open: true},
	"NOOP": {Fn: (*clientHandler).handleNOOP},

	// Transfer parameters
	"TYPE": {Fn: (*clientHandler).handleTYPE},
	"MODE": {Fn: (*clientHandler).handleMODE},
	"STRU": {Fn: (*clientHandler).handleSTRU},
	"PASV": {Fn: (*clientHandler).handlePASV},

	// Directory handling
	"PWD":  {Fn: (*clientHandler).handlePWD},
	"CWD":  {Fn: (*clientHandler).handleCWD},
	"CDUP": {Fn: (*clientHandler).handleCDUP},
	"LIST": {Fn: (*clientHandler).handleLIST, TransferRelated: true},
	"MKD":  {Fn: (*clientHandler).handleMKD},
	"RMD":  {Fn: (*clientHandler).handleRMD},

	// File access
	"STOR": {Fn: (*clientHandler).handleSTOR, TransferRelated: true},
	"RETR": {Fn: (*clientHandler).handleRETR, TransferRelated: true},
	"DELE": {Fn: (*clientHandler).handleDELE},
	"MDTM": {Fn: (*clientHandler).handleMDTM},
	"SIZE": {Fn: (*clientHandler).handleSIZE},
}

// clientHandler is one control connection and its session state. All
// commands of a session are handled on a single goroutine, strictly FIFO.
type clientHandler struct {
	id          uint32        // ID of the client
	server      *FtpServer    // Server on which the connection was accepted
	conn        net.Conn      // TCP control connection
	writer      *bufio.Writer // Writer on the TCP connection
	reader      *bufio.Reader // Reader on the TCP connection
	logger      log.Logger    // Client handler logging
	connectedAt time.Time     // Date of connection

	loggedIn      bool   // Whether PASS succeeded
	candidateUser string // Username received, awaiting PASS
	user          string // Authenticated user
	home          string // Canonical absolute host path of the user's home
	path          string // Virtual current directory, always rooted at "/"

	transferType TransferType // Current transfer type
	dataConn     net.Conn     // Accepted passive data connection, if any

	closing bool // Set by QUIT and fatal replies to end the command loop
}

// newClientHandler initializes a client handler when someone connects
func (server *FtpServer) newClientHandler(connection net.Conn, id uint32) *clientHandler {
	return &clientHandler{
		server:      server,
		conn:        connection,
		id:          id,
		writer:      bufio.NewWriter(connection),
		reader:      bufio.NewReader(connection),
		connectedAt: time.Now().UTC(),
		path:        "/",
		logger:      server.Logger.With("clientId", id),
	}
}

func (c *clientHandler) end() {
	c.closeDataConn()

	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("Problem disconnecting a client", "err", err)
	}

	c.server.clientDeparture(c)
}

// HandleCommands reads the stream of commands
func (c *clientHandler) HandleCommands() {
	defer c.end()

	c.writeMessage(StatusServiceReady, "Welcome to US FTP Server")

	// The login phase as a whole runs under a single absolute deadline.
	loginDeadline := time.Now().Add(c.server.config.LoginTimeout)

	for {
		deadline := loginDeadline
		if c.loggedIn {
			deadline = time.Now().Add(c.server.config.SessionTimeout)
		}

		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.logger.Error("Network error", "err", err)

			return
		}

		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.handleCommandsStreamError(err)

			return
		}

		c.handleCommand(line)

		if c.closing {
			return
		}
	}
}

func (c *clientHandler) handleCommandsStreamError(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// Grant a grace period to flush the 421 before closing
		if errDeadline := c.conn.SetDeadline(time.Now().Add(time.Minute)); errDeadline != nil {
			c.logger.Error("Could not set deadline", "err", errDeadline)
		}

		if c.loggedIn {
			c.logger.Info("Session timeout", "user", c.user)
			c.writeMessage(StatusServiceNotAvailable, "Session timeout, closing connection.")
		} else {
			c.logger.Info("Login timeout")
			c.writeMessage(StatusServiceNotAvailable, "Login timeout, closing connection.")
		}

		return
	}

	if errors.Is(err, io.EOF) {
		c.logger.Debug("Client disconnected", "clean", false)

		return
	}

	c.logger.Error("Read error", "err", err)
}

// handleCommand takes care of executing the received line
func (c *clientHandler) handleCommand(line string) {
	command, param := parseLine(line)
	command = strings.ToUpper(command)

	cmdDesc := commandsMap[command]
	if cmdDesc == nil {
		c.writeMessage(StatusCommandNotImplemented, "Command not implemented.")

		return
	}

	if !c.loggedIn && !cmdDesc.Open {
		c.writeMessage(StatusNotLoggedIn, "Please login with USER and PASS.")

		return
	}

	c.server.Collector.CommandProcessed(command)

	// Let's prepare to recover in case there's a command error
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Internal command handling error", "err", r, "command", command)
			c.writeMessage(StatusInternalError, "Internal server error")
			c.closing = true
		}
	}()

	if err := cmdDesc.Fn(c, param); err != nil {
		c.logger.Warn("Command handling error", "err", err, "command", command)
		c.writeMessage(StatusInternalError, "Internal server error")
		c.closing = true
	}
}

func (c *clientHandler) writeLine(line string) {
	c.logger.Debug("Sending answer", "line", line)

	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		c.logger.Warn("Answer couldn't be sent", "line", line, "err", err)
	}

	if err := c.writer.Flush(); err != nil {
		c.logger.Warn("Couldn't flush line", "err", err)
	}
}

// writeMessage emits one logical reply: a single DDD<space> line, or a
// DDD-<line> sequence closed by a DDD<space> line for multi-line texts.
func (c *clientHandler) writeMessage(code int, message string) {
	lines := getMessageLines(message)

	for idx, line := range lines {
		if idx < len(lines)-1 {
			c.writeLine(fmt.Sprintf("%d-%s", code, line))
		} else {
			c.writeLine(fmt.Sprintf("%d %s", code, line))
		}
	}
}

// closeDataConn releases the passive data connection, if any.
func (c *clientHandler) closeDataConn() {
	if c.dataConn != nil {
		if err := c.dataConn.Close(); err != nil {
			c.logger.Warn("Problem closing the data connection", "err", err)
		}

		c.dataConn = nil
	}
}

// takeDataConn hands over the passive data connection to a transfer command
// and clears the slot. The caller owns the returned connection.
func (c *clientHandler) takeDataConn() net.Conn {
	conn := c.dataConn
	c.dataConn = nil

	return conn
}

func parseLine(line string) (string, string) {
	params := strings.SplitN(strings.Trim(line, "\r\n"), " ", 2)
	if len(params) == 1 {
		return params[0], ""
	}

	return params[0], params[1]
}

func getMessageLines(message string) []string {
	lines := make([]string, 0, 1)
	sc := bufio.NewScanner(strings.NewReader(message))

	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if len(lines) == 0 {
		lines = append(lines, "")
	}

	return lines
}
