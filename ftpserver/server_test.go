package ftpserver

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	lognoop "github.com/fclairamb/go-log/noop"
	"github.com/stretchr/testify/require"

	"github.com/wasu-code/basic-ftp/config"
)

func TestGreetingAndLogin(t *testing.T) {
	server := NewTestServer(t)
	conn, reader := rawControlConn(t, server)

	require.Equal(t, "220 Welcome to US FTP Server", readReplyLine(t, reader))

	sendLine(t, conn, "USER "+authUser)
	require.Equal(t, "331 Username received, need password.", readReplyLine(t, reader))

	sendLine(t, conn, "PASS "+authPass)
	require.Equal(t, "230 User logged in, proceed.", readReplyLine(t, reader))

	sendLine(t, conn, "NOOP")
	require.Equal(t, "200 NOOP ok.", readReplyLine(t, reader))

	sendLine(t, conn, "QUIT")
	require.Equal(t, "221 Goodbye.", readReplyLine(t, reader))
}

func TestLoginFailure(t *testing.T) {
	server := NewTestServer(t)
	conn, reader := rawControlConn(t, server)

	readReplyLine(t, reader)

	sendLine(t, conn, "USER "+authUser)
	readReplyLine(t, reader)

	sendLine(t, conn, "PASS wrongpass")
	require.Equal(t, "530 Credentials incorrect.", readReplyLine(t, reader))

	// A failed login drops back to the initial state: PASS alone is refused
	sendLine(t, conn, "PASS "+authPass)
	require.Equal(t, "530 Please login with USER and PASS.", readReplyLine(t, reader))

	// The session stays usable for a correct attempt
	sendLine(t, conn, "USER "+authUser)
	readReplyLine(t, reader)
	sendLine(t, conn, "PASS "+authPass)
	require.Equal(t, "230 User logged in, proceed.", readReplyLine(t, reader))
}

func TestAnonymousLogin(t *testing.T) {
	cfg := testConfig(t)
	server := NewTestServerWithConfig(t, cfg)

	conn, reader := rawControlConn(t, server)
	readReplyLine(t, reader)

	sendLine(t, conn, "USER anonymous")
	readReplyLine(t, reader)
	sendLine(t, conn, "PASS")
	require.Equal(t, "230 User logged in, proceed.", readReplyLine(t, reader))
}

func TestAnonymousLoginDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowAnonymous = false
	server := NewTestServerWithConfig(t, cfg)

	conn, reader := rawControlConn(t, server)
	readReplyLine(t, reader)

	sendLine(t, conn, "USER anonymous")
	readReplyLine(t, reader)
	sendLine(t, conn, "PASS")
	require.Equal(t, "530 Credentials incorrect.", readReplyLine(t, reader))
}

func TestPreLoginGate(t *testing.T) {
	server := NewTestServer(t)
	conn, reader := rawControlConn(t, server)

	readReplyLine(t, reader)

	for _, cmd := range []string{"LIST", "PWD", "PASV", "STOR x", "RETR x"} {
		sendLine(t, conn, cmd)
		require.Equal(t, "530 Please login with USER and PASS.", readReplyLine(t, reader), cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	sendAndCheck(t, raw, "FOOBAR", StatusCommandNotImplemented)
}

func TestTransferParameters(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	sendAndCheck(t, raw, "TYPE I", StatusOK)
	sendAndCheck(t, raw, "TYPE A", StatusOK)
	sendAndCheck(t, raw, "TYPE X", StatusCommandNotImplementedParam)
	sendAndCheck(t, raw, "MODE S", StatusOK)
	sendAndCheck(t, raw, "MODE B", StatusCommandNotImplementedParam)
	sendAndCheck(t, raw, "STRU F", StatusOK)
	sendAndCheck(t, raw, "STRU R", StatusCommandNotImplementedParam)
}

func TestDirectoryNavigation(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	response := sendAndCheck(t, raw, "PWD", StatusPathCreated)
	require.Equal(t, `"/" is the current directory.`, response)

	sendAndCheck(t, raw, "MKD sub", StatusPathCreated)
	sendAndCheck(t, raw, "CWD sub", StatusFileOK)

	response = sendAndCheck(t, raw, "PWD", StatusPathCreated)
	require.Equal(t, `"/sub" is the current directory.`, response)

	sendAndCheck(t, raw, "CDUP", StatusFileOK)

	response = sendAndCheck(t, raw, "PWD", StatusPathCreated)
	require.Equal(t, `"/" is the current directory.`, response)

	sendAndCheck(t, raw, "CWD missing", StatusActionNotTaken)
	sendAndCheck(t, raw, "CWD", StatusSyntaxErrorParameters)
}

func TestMkdTwice(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	response := sendAndCheck(t, raw, "MKD dir", StatusPathCreated)
	require.Equal(t, "Directory created: dir.", response)

	sendAndCheck(t, raw, "MKD dir", StatusActionNotTaken)
}

func TestRmd(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)
	client := newFtpClient(t, server)

	sendAndCheck(t, raw, "MKD dir", StatusPathCreated)
	sendAndCheck(t, raw, "MKD dir/inner", StatusPathCreated)

	// Not empty
	sendAndCheck(t, raw, "RMD dir", StatusActionNotTaken)

	sendAndCheck(t, raw, "RMD dir/inner", StatusFileOK)
	sendAndCheck(t, raw, "RMD dir", StatusFileOK)
	sendAndCheck(t, raw, "RMD dir", StatusActionNotTaken)

	// A file is not a directory but DELE takes it
	err := client.Store("file.bin", bytes.NewReader([]byte("content")))
	require.NoError(t, err)

	sendAndCheck(t, raw, "DELE file.bin", StatusFileOK)
	sendAndCheck(t, raw, "DELE file.bin", StatusActionNotTaken)
}

func TestTransferRoundTrip(t *testing.T) {
	server := NewTestServer(t)
	client := newFtpClient(t, server)

	content := []byte("some binary content \x00\x01\x02 and more")

	require.NoError(t, client.Store("file.bin", bytes.NewReader(content)))

	buf := &bytes.Buffer{}
	require.NoError(t, client.Retrieve("file.bin", buf))
	require.Equal(t, content, buf.Bytes())
}

func TestStorOverwrite(t *testing.T) {
	server := NewTestServer(t)
	client := newFtpClient(t, server)

	require.NoError(t, client.Store("file.bin", strings.NewReader("first version")))
	require.NoError(t, client.Store("file.bin", strings.NewReader("second")))

	buf := &bytes.Buffer{}
	require.NoError(t, client.Retrieve("file.bin", buf))
	require.Equal(t, "second", buf.String())
}

func TestListFormat(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)
	client := newFtpClient(t, server)

	require.NoError(t, client.Store("file.bin", bytes.NewReader(make([]byte, 42))))
	sendAndCheck(t, raw, "MKD dir", StatusPathCreated)

	dataConn := openRawDataConn(t, raw)

	sendAndCheck(t, raw, "LIST", StatusFileStatusOK)

	listing := drainData(t, dataConn)

	code, _, err := raw.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, StatusClosingDataConn, code)

	lines := strings.Split(strings.TrimRight(listing, "\r\n"), "\r\n")
	require.Len(t, lines, 2)

	require.Contains(t, lines, "-rw-r--r-- 1 user group 42 Jan 1 00:00 file.bin")
	require.Regexp(t, regexp.MustCompile(`^drwxr-xr-x 2 user group \d+ Jan 1 00:00 dir$`), findLine(lines, "dir"))
}

func findLine(lines []string, suffix string) string {
	for _, line := range lines {
		if strings.HasSuffix(line, suffix) {
			return line
		}
	}

	return ""
}

func TestListWithoutPasv(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	response := sendAndCheck(t, raw, "LIST", StatusCannotOpenDataConnection)
	require.Equal(t, "Use PASV first.", response)
}

func TestJailEscape(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)

	dataConn := openRawDataConn(t, raw)

	sendAndCheck(t, raw, "RETR ../../etc/passwd", StatusActionNotTaken)

	_ = dataConn.Close()

	// The session stays usable afterwards
	sendAndCheck(t, raw, "NOOP", StatusOK)
	sendAndCheck(t, raw, "CWD ..", StatusActionNotTaken)
	sendAndCheck(t, raw, "MKD ../outside", StatusActionNotTaken)
	sendAndCheck(t, raw, "DELE ../../etc/hosts", StatusActionNotTaken)
}

func TestMdtmAndSize(t *testing.T) {
	server := NewTestServer(t)
	raw := newClientWithRawConn(t, server)
	client := newFtpClient(t, server)

	require.NoError(t, client.Store("file.bin", bytes.NewReader(make([]byte, 1234))))

	response := sendAndCheck(t, raw, "SIZE file.bin", StatusFileStatus)
	require.Equal(t, "1234", response)

	response = sendAndCheck(t, raw, "MDTM file.bin", StatusFileStatus)
	require.Regexp(t, regexp.MustCompile(`^\d{14}$`), response)

	stamp, err := time.Parse("20060102150405", response)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().UTC(), stamp, time.Minute)

	sendAndCheck(t, raw, "SIZE missing.bin", StatusActionNotTaken)
	sendAndCheck(t, raw, "MDTM missing.bin", StatusActionNotTaken)

	// SIZE is a binary-type fact
	sendAndCheck(t, raw, "TYPE A", StatusOK)
	sendAndCheck(t, raw, "SIZE file.bin", StatusActionNotTaken)
}

func TestPassivePortExhaustion(t *testing.T) {
	cfg := testConfig(t)

	// Occupy a single-port range up front
	blocker, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = blocker.Close() })

	port := blocker.Addr().(*net.TCPAddr).Port
	cfg.PassivePortRange = config.PortRange{Start: port, End: port}

	server := NewTestServerWithConfig(t, cfg)
	raw := newClientWithRawConn(t, server)

	response := sendAndCheck(t, raw, "PASV", StatusCannotOpenDataConnection)
	require.Equal(t, "Can't open passive connection.", response)
}

func TestPasvAcceptTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataTimeout = 500 * time.Millisecond

	server := NewTestServerWithConfig(t, cfg)
	raw := newClientWithRawConn(t, server)

	code, response, err := raw.SendCommand("PASV")
	require.NoError(t, err)
	require.Equal(t, StatusEnteringPASV, code, response)

	// Nobody dials back: the listener must give up on its own
	code, response, err = raw.ReadResponse()
	require.NoError(t, err)
	require.Equal(t, StatusCannotOpenDataConnection, code)
	require.Equal(t, "Data connection timed out.", response)

	sendAndCheck(t, raw, "NOOP", StatusOK)
}

func TestLoginTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoginTimeout = 500 * time.Millisecond

	server := NewTestServerWithConfig(t, cfg)
	conn, reader := rawControlConn(t, server)

	readReplyLine(t, reader)

	require.Equal(t, "421 Login timeout, closing connection.", readReplyLine(t, reader))

	// The server closes right after the reply
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := reader.ReadByte()
	require.Error(t, err)
}

func TestSessionTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionTimeout = 500 * time.Millisecond

	server := NewTestServerWithConfig(t, cfg)
	conn, reader := rawControlConn(t, server)

	readReplyLine(t, reader)
	sendLine(t, conn, "USER "+authUser)
	readReplyLine(t, reader)
	sendLine(t, conn, "PASS "+authPass)
	readReplyLine(t, reader)

	require.Equal(t, "421 Session timeout, closing connection.", readReplyLine(t, reader))
}

func TestStopDrainsSessions(t *testing.T) {
	server := NewTestServer(t)

	conn, reader := rawControlConn(t, server)
	readReplyLine(t, reader)

	require.Equal(t, 1, server.ClientCount())

	sendLine(t, conn, "QUIT")
	readReplyLine(t, reader)

	require.Eventually(t, func() bool { return server.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestMultilineReplyShape(t *testing.T) {
	buf := &bytes.Buffer{}
	c := &clientHandler{writer: bufio.NewWriter(buf), logger: lognoop.NewNoOpLogger()}

	c.writeMessage(230, "first\nsecond\nthird")

	require.Equal(t, "230-first\r\n230-second\r\n230 third\r\n", buf.String())

	buf.Reset()
	c.writeMessage(200, "single")
	require.Equal(t, "200 single\r\n", buf.String())
}

func TestParseLine(t *testing.T) {
	command, param := parseLine("STOR file with spaces.txt\r\n")
	require.Equal(t, "STOR", command)
	require.Equal(t, "file with spaces.txt", param)

	command, param = parseLine("NOOP\r\n")
	require.Equal(t, "NOOP", command)
	require.Equal(t, "", param)
}

func TestFileStatFixedDate(t *testing.T) {
	info := fakeFileInfo{name: "x.txt", size: 7}
	require.Equal(t, "-rw-r--r-- 1 user group 7 Jan 1 00:00 x.txt", fileStat(info))

	info = fakeFileInfo{name: "d", size: 4096, dir: true}
	require.Equal(t, "drwxr-xr-x 2 user group 4096 Jan 1 00:00 d", fileStat(info))
}

type fakeFileInfo struct {
	name string
	size int64
	dir  bool
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) Mode() os.FileMode  { return 0644 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() interface{}   { return nil }
