package ftpserver

import (
	"fmt"
	"io"
	"os"
)

// mdtmFormat is the YYYYMMDDHHMMSS layout of MDTM facts, always UTC.
const mdtmFormat = "20060102150405"

// Handle the "STOR" command
func (c *clientHandler) handleSTOR(param string) error {
	return c.transferFile(param, true)
}

// Handle the "RETR" command
func (c *clientHandler) handleRETR(param string) error {
	return c.transferFile(param, false)
}

// transferFile serves STOR and RETR. The data connection is consumed,
// closed and cleared before the terminal 226 is emitted.
func (c *clientHandler) transferFile(param string, write bool) error {
	if c.dataConn == nil {
		c.writeMessage(StatusCannotOpenDataConnection, "Use PASV first.")

		return nil
	}

	if param == "" {
		c.closeDataConn()
		c.writeMessage(StatusActionNotTaken, "Missing file argument.")

		return nil
	}

	target, err := c.resolve(param, !write)
	if err != nil {
		c.closeDataConn()
		c.writePathError(err)

		return nil
	}

	var file io.ReadWriteCloser

	if write {
		file, err = c.server.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	} else {
		if info, errStat := c.server.fs.Stat(target); errStat != nil || !info.Mode().IsRegular() {
			c.closeDataConn()
			c.writeMessage(StatusActionNotTaken, "Not a regular file.")

			return nil
		}

		file, err = c.server.fs.Open(target)
	}

	if err != nil {
		c.closeDataConn()
		c.writeMessage(StatusActionNotTaken, "Could not access file: "+err.Error())

		return nil
	}

	command := "RETR"
	if write {
		command = "STOR"
	}

	c.writeMessage(StatusFileStatusOK, fmt.Sprintf("Ok to transfer %s.", param))

	conn := c.takeDataConn()

	var written int64
	var errTransfer error

	if write { // ... from the connection to the file
		written, errTransfer = io.Copy(file, conn)
	} else { // ... from the file to the connection
		written, errTransfer = io.Copy(conn, file)
	}

	// The sender's close is what signals EOF to the peer, so the data
	// connection goes down before the terminal reply in every case.
	if errClose := conn.Close(); errClose != nil && errTransfer == nil {
		errTransfer = errClose
	}

	if errClose := file.Close(); errClose != nil && errTransfer == nil && write {
		errTransfer = errClose
	}

	if errTransfer != nil {
		c.logger.Warn("Transfer failed", "command", command, "path", target, "err", errTransfer)
		c.writeMessage(StatusActionNotTaken, "Transfer failed.")

		return nil
	}

	c.logger.Debug("Transfer finished", "command", command, "path", target, "bytes", written)
	c.server.Collector.TransferCompleted(command, written)
	c.writeMessage(StatusClosingDataConn, "Transfer complete.")

	return nil
}

// Handle the "DELE" command
func (c *clientHandler) handleDELE(param string) error {
	target, err := c.resolve(param, true)
	if err != nil {
		c.writePathError(err)

		return nil
	}

	info, err := c.server.fs.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		c.writeMessage(StatusActionNotTaken, "Permission denied.")

		return nil
	}

	if err := c.server.fs.Remove(target); err != nil {
		c.writeMessage(StatusActionNotTaken, "Permission denied.")

		return nil
	}

	c.writeMessage(StatusFileOK, fmt.Sprintf("File deleted: %s.", param))

	return nil
}

// Handle the "MDTM" command
func (c *clientHandler) handleMDTM(param string) error {
	info, ok := c.statRegularFile(param)
	if !ok {
		return nil
	}

	c.writeMessage(StatusFileStatus, info.ModTime().UTC().Format(mdtmFormat))

	return nil
}

// Handle the "SIZE" command. Sizes are only meaningful in binary type.
func (c *clientHandler) handleSIZE(param string) error {
	if c.transferType != TransferTypeBinary {
		c.writeMessage(StatusActionNotTaken, "SIZE not allowed in ASCII type.")

		return nil
	}

	info, ok := c.statRegularFile(param)
	if !ok {
		return nil
	}

	c.writeMessage(StatusFileStatus, fmt.Sprintf("%d", info.Size()))

	return nil
}

func (c *clientHandler) statRegularFile(param string) (os.FileInfo, bool) {
	target, err := c.resolve(param, true)
	if err != nil {
		c.writePathError(err)

		return nil, false
	}

	info, err := c.server.fs.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		c.writeMessage(StatusActionNotTaken, "Not a regular file.")

		return nil, false
	}

	return info, true
}
