package ftpclient

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// mdtmFormats are the timestamp layouts servers put in 213 MDTM replies.
var mdtmFormats = []string{"20060102150405.000", "20060102150405"}

// List prints the directory listing of a remote path.
func (c *Client) List(path string) error {
	dataConn, err := c.openDataConn()
	if err != nil {
		return err
	}

	defer dataConn.Close()

	reply, err := c.sendCommand(strings.TrimSpace("LIST " + path))
	if err != nil {
		return err
	}

	if reply.Code == 550 {
		fmt.Fprintf(c.out, "File unavailable (e.g., file not found, no access)\n")

		return nil
	}

	if reply.Code != 150 {
		return &ProtocolError{Reply: reply}
	}

	listing, err := io.ReadAll(dataConn)
	if err != nil {
		return fmt.Errorf("error reading data response: %w", err)
	}

	fmt.Fprintf(c.out, "%s\n", listing)

	if err := dataConn.Close(); err != nil {
		return fmt.Errorf("could not close data connection: %w", err)
	}

	reply, err = c.getReply()
	if err != nil {
		return err
	}

	if !reply.OK() {
		return &ProtocolError{Reply: reply}
	}

	return nil
}

// MakeDir creates a remote directory.
func (c *Client) MakeDir(path string) error {
	return c.simpleCommand("MKD " + path)
}

// RemoveDir removes an empty remote directory.
func (c *Client) RemoveDir(path string) error {
	return c.simpleCommand("RMD " + path)
}

// Delete removes a remote file.
func (c *Client) Delete(path string) error {
	reply, err := c.sendCommand("DELE " + path)
	if err != nil {
		return err
	}

	if !reply.OK() {
		if reply.Code == 550 && strings.Contains(reply.Text, "Permission denied") {
			fmt.Fprintf(c.out, "Possible causes:\n1)Your account can't delete file\n"+
				"2)You're attempting to delete folder with rm instead of rmdir\n")
		}

		return &ProtocolError{Reply: reply}
	}

	return nil
}

// Mdtm returns the remote modification time of a file, or the zero time
// when the server has none to give.
func (c *Client) Mdtm(path string) (time.Time, error) {
	reply, err := c.sendCommand("MDTM " + path)
	if err != nil {
		return time.Time{}, err
	}

	if reply.Code != 213 {
		return time.Time{}, nil
	}

	stamp := strings.TrimSpace(reply.Text)

	for _, layout := range mdtmFormats {
		if t, errParse := time.Parse(layout, stamp); errParse == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not parse MDTM reply %q", stamp)
}

// Size returns the remote size of a file, or -1 when the server refuses.
func (c *Client) Size(path string) (int64, error) {
	reply, err := c.sendCommand("SIZE " + path)
	if err != nil {
		return -1, err
	}

	if reply.Code != 213 {
		return -1, nil
	}

	size, err := strconv.ParseInt(strings.TrimSpace(reply.Text), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("could not parse SIZE reply %q", reply.Text)
	}

	return size, nil
}

// Download retrieves a remote file into a local one. An existing local file
// triggers a confirmation prompt; declining returns ErrAborted before any
// data connection is opened. The received size is checked against SIZE.
func (c *Client) Download(remotePath, localPath string) error {
	if _, err := os.Stat(localPath); err == nil {
		if !c.confirm(fmt.Sprintf("The file '%s' already exists. Do you want to overwrite it?", localPath)) {
			fmt.Fprintf(c.out, "Download aborted.\n\n")

			return ErrAborted
		}
	}

	dataConn, err := c.openDataConn()
	if err != nil {
		return err
	}

	defer dataConn.Close()

	reply, err := c.sendCommand("RETR " + remotePath)
	if err != nil {
		return err
	}

	if reply.Code != 150 {
		fmt.Fprintf(c.out, "Server didn't start data transfer\n\n")

		return &ProtocolError{Reply: reply}
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", localPath, err)
	}

	written, errCopy := io.Copy(file, dataConn)

	if errClose := file.Close(); errClose != nil && errCopy == nil {
		errCopy = errClose
	}

	if errClose := dataConn.Close(); errClose != nil && errCopy == nil {
		errCopy = errClose
	}

	if errCopy != nil {
		return fmt.Errorf("download of %q failed: %w", remotePath, errCopy)
	}

	reply, err = c.getReply()
	if err != nil {
		return err
	}

	if !reply.OK() {
		fmt.Fprintf(c.out, "File download failed.\n\n")

		return &ProtocolError{Reply: reply}
	}

	if remoteSize, errSize := c.Size(remotePath); errSize == nil && remoteSize >= 0 {
		fmt.Fprintf(c.out, "Remote file size: %d, Local file size: %d\n\n", remoteSize, written)

		if remoteSize != written {
			fmt.Fprintf(c.out, "File download failed.\n\n")

			return fmt.Errorf("size mismatch: remote %d, local %d", remoteSize, written)
		}
	}

	fmt.Fprintf(c.out, "File downloaded successfully to '%s'.\n\n", localPath)

	return nil
}

// Upload stores a local file under a remote path. When the remote copy is
// strictly newer than the local one, a confirmation prompt runs before any
// data connection is opened; declining returns ErrAborted.
func (c *Client) Upload(localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("could not stat %q: %w", localPath, err)
	}

	remoteTime, err := c.Mdtm(remotePath)
	if err != nil {
		return err
	}

	if !remoteTime.IsZero() && remoteTime.After(info.ModTime().UTC()) {
		question := fmt.Sprintf("Remote file '%s' is newer (%s) than your local file (%s). Overwrite?",
			remotePath, remoteTime.Format(time.RFC3339), info.ModTime().UTC().Format(time.RFC3339))

		if !c.confirm(question) {
			fmt.Fprintf(c.out, "Upload canceled.\n")

			return ErrAborted
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", localPath, err)
	}

	defer file.Close()

	dataConn, err := c.openDataConn()
	if err != nil {
		return err
	}

	defer dataConn.Close()

	reply, err := c.sendCommand("STOR " + remotePath)
	if err != nil {
		return err
	}

	if reply.Code != 150 {
		return &ProtocolError{Reply: reply}
	}

	_, errCopy := io.Copy(dataConn, file)

	// Closing is what tells the server the upload is over
	if errClose := dataConn.Close(); errClose != nil && errCopy == nil {
		errCopy = errClose
	}

	if errCopy != nil {
		return fmt.Errorf("upload of %q failed: %w", localPath, errCopy)
	}

	reply, err = c.getReply()
	if err != nil {
		return err
	}

	if !reply.OK() {
		fmt.Fprintf(c.out, "Upload failed\n")

		return &ProtocolError{Reply: reply}
	}

	fmt.Fprintf(c.out, "File uploaded\n")

	return nil
}

func (c *Client) simpleCommand(command string) error {
	reply, err := c.sendCommand(command)
	if err != nil {
		return err
	}

	if !reply.OK() {
		return &ProtocolError{Reply: reply}
	}

	return nil
}
