package ftpserver

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// writePathError maps the jail and filesystem error kinds to their 550 reply.
func (c *clientHandler) writePathError(err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		c.writeMessage(StatusActionNotTaken, "Permission denied.")
	case errors.Is(err, ErrNotFound):
		c.writeMessage(StatusActionNotTaken, "File not found.")
	default:
		c.writeMessage(StatusActionNotTaken, "Action not taken.")
	}
}

// Handle the "PWD" command
func (c *clientHandler) handlePWD(_ string) error {
	c.writeMessage(StatusPathCreated, fmt.Sprintf("\"%s\" is the current directory.", c.path))

	return nil
}

// Handle the "CWD" command
func (c *clientHandler) handleCWD(param string) error {
	if param == "" {
		c.writeMessage(StatusSyntaxErrorParameters, "Missing directory argument.")

		return nil
	}

	return c.changeDir(param)
}

// Handle the "CDUP" command
func (c *clientHandler) handleCDUP(_ string) error {
	return c.changeDir("..")
}

func (c *clientHandler) changeDir(param string) error {
	target, err := c.resolve(param, true)
	if err != nil {
		c.writePathError(err)

		return nil
	}

	info, err := c.server.fs.Stat(target)
	if err != nil || !info.IsDir() {
		c.writeMessage(StatusActionNotTaken, "Not a directory.")

		return nil
	}

	c.path = c.ftpPath(target)
	c.writeMessage(StatusFileOK, fmt.Sprintf("Directory changed to %s.", c.path))

	return nil
}

// Handle the "MKD" command
func (c *clientHandler) handleMKD(param string) error {
	if param == "" {
		c.writeMessage(StatusSyntaxErrorParameters, "Missing directory argument.")

		return nil
	}

	target, err := c.resolve(param, false)
	if err != nil {
		c.writePathError(err)

		return nil
	}

	if err := c.server.fs.Mkdir(target, 0755); err != nil {
		c.writeMessage(StatusActionNotTaken, "Permission denied.")

		return nil
	}

	c.writeMessage(StatusPathCreated, fmt.Sprintf("Directory created: %s.", param))

	return nil
}

// Handle the "RMD" command
func (c *clientHandler) handleRMD(param string) error {
	if param == "" {
		c.writeMessage(StatusSyntaxErrorParameters, "Missing directory argument.")

		return nil
	}

	target, err := c.resolve(param, true)
	if err != nil {
		c.writePathError(err)

		return nil
	}

	info, err := c.server.fs.Stat(target)
	if err != nil || !info.IsDir() || target == c.home {
		c.writeMessage(StatusActionNotTaken, "Permission denied.")

		return nil
	}

	// Remove refuses a non-empty directory, which is exactly what RMD wants
	if err := c.server.fs.Remove(target); err != nil {
		c.writeMessage(StatusActionNotTaken, "Permission denied.")

		return nil
	}

	c.writeMessage(StatusFileOK, fmt.Sprintf("Directory deleted: %s.", param))

	return nil
}

// Handle the "LIST" command
func (c *clientHandler) handleLIST(param string) error {
	if c.dataConn == nil {
		c.writeMessage(StatusCannotOpenDataConnection, "Use PASV first.")

		return nil
	}

	target, err := c.resolve(param, true)
	if err != nil {
		c.closeDataConn()
		c.writePathError(err)

		return nil
	}

	files, errList := afero.ReadDir(c.server.fs, target)
	if errList != nil {
		c.closeDataConn()
		c.writeMessage(StatusActionNotTaken, "File unavailable.")

		return nil
	}

	c.writeMessage(StatusFileStatusOK, "Here comes the directory listing.")

	conn := c.takeDataConn()
	written, errTransfer := dirTransferLIST(conn, files)

	if errClose := conn.Close(); errClose != nil && errTransfer == nil {
		errTransfer = errClose
	}

	if errTransfer != nil {
		c.logger.Warn("Problem sending directory listing", "err", errTransfer)
		c.writeMessage(StatusActionNotTaken, "Transfer failed.")

		return nil
	}

	c.server.Collector.TransferCompleted("LIST", written)
	c.writeMessage(StatusClosingDataConn, "Directory send ok.")

	return nil
}

// fileStat formats one LIST line. The date is fixed, only the size is real.
func fileStat(file os.FileInfo) string {
	if file.IsDir() {
		return fmt.Sprintf("drwxr-xr-x 2 user group %d Jan 1 00:00 %s", file.Size(), file.Name())
	}

	return fmt.Sprintf("-rw-r--r-- 1 user group %d Jan 1 00:00 %s", file.Size(), file.Name())
}

func dirTransferLIST(w io.Writer, files []os.FileInfo) (int64, error) {
	var written int64

	for _, file := range files {
		n, err := fmt.Fprintf(w, "%s\r\n", fileStat(file))
		written += int64(n)

		if err != nil {
			return written, err
		}
	}

	return written, nil
}
