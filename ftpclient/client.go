package ftpclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrAborted is returned when the user declines a confirmation prompt.
	ErrAborted = errors.New("operation aborted by the user")
)

// ProtocolError is returned when the server replies with an unexpected code.
type ProtocolError struct {
	Reply *Reply
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected reply: %d %s", e.Reply.Code, e.Reply.Text)
}

// Client is a single-connection FTP protocol driver. All I/O is blocking
// and sequential; every command sent and reply received is echoed to the
// transcript writer.
type Client struct {
	host     string
	port     int
	username string
	password string

	conn   net.Conn
	reader *bufio.Reader

	out io.Writer     // transcript
	in  *bufio.Reader // confirmation prompts
}

// NewClient prepares a driver for the given server and credentials. The
// transcript goes to stdout and prompts read stdin until redirected with
// SetTranscript / SetPromptInput.
func NewClient(host string, port int, username, password string) *Client {
	if username == "" {
		username = "anonymous"
	}

	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		out:      os.Stdout,
		in:       bufio.NewReader(os.Stdin),
	}
}

// SetTranscript redirects the command/reply transcript.
func (c *Client) SetTranscript(w io.Writer) {
	c.out = w
}

// SetPromptInput redirects where confirmation answers are read from.
func (c *Client) SetPromptInput(r io.Reader) {
	c.in = bufio.NewReader(r)
}

// Connect dials the control connection and consumes the server greeting.
func (c *Client) Connect() error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	fmt.Fprintf(c.out, "Connecting to %s\n", addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	if _, err := c.getReply(); err != nil {
		return err
	}

	return nil
}

// Login issues USER and PASS.
func (c *Client) Login() error {
	if _, err := c.sendCommand("USER " + c.username); err != nil {
		return err
	}

	reply, err := c.sendCommand("PASS " + c.password)
	if err != nil {
		return err
	}

	if !reply.OK() {
		return fmt.Errorf("login failed: %w", &ProtocolError{Reply: reply})
	}

	fmt.Fprintf(c.out, "FTP login successful.\n\n")

	return nil
}

// Setup selects binary type, stream mode and file structure. It must run
// after Login and before any transfer; any refusal is fatal.
func (c *Client) Setup() error {
	for _, command := range []string{"TYPE I", "MODE S", "STRU F"} {
		reply, err := c.sendCommand(command)
		if err != nil {
			return err
		}

		if !reply.OK() {
			return fmt.Errorf("setup command %q refused: %w", command, &ProtocolError{Reply: reply})
		}
	}

	fmt.Fprintf(c.out, "FTP setup successful\n\n")

	return nil
}

// Close sends the final QUIT and tears down the control connection. It is
// safe to call on every exit path.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}

	if _, err := c.sendCommand("QUIT"); err != nil {
		fmt.Fprintf(c.out, "Can't close connection: %v\n", err)
	}

	if err := c.conn.Close(); err != nil {
		fmt.Fprintf(c.out, "Can't close connection: %v\n", err)
	}

	c.conn = nil
}

// sendCommand writes one command line and reads the logical reply to it.
func (c *Client) sendCommand(command string) (*Reply, error) {
	fmt.Fprintf(c.out, ">> Sending command: %s\n", command)

	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		return nil, fmt.Errorf("could not send command %q: %w", command, err)
	}

	return c.getReply()
}

// getReply reads one logical reply and echoes it to the transcript.
func (c *Client) getReply() (*Reply, error) {
	reply, err := readReply(c.reader)
	if err != nil {
		return nil, err
	}

	for _, line := range reply.Lines {
		fmt.Fprintf(c.out, "<< %s\n", line)
	}

	return reply, nil
}

// confirm asks a y/N question on the prompt input. Anything but "y" is a no.
func (c *Client) confirm(question string) bool {
	fmt.Fprintf(c.out, "%s (y/N): ", question)

	answer, err := c.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
