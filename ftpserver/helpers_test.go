package ftpserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/secsy/goftp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/wasu-code/basic-ftp/config"
	"github.com/wasu-code/basic-ftp/userstore"
)

const (
	authUser = "test"
	authPass = "test"
)

// testConfig returns a configuration usable by a test server: ephemeral
// control port, a wide passive range and short timeouts.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Host:             "127.0.0.1",
		Port:             0,
		PassivePortRange: config.PortRange{Start: 21100, End: 21199},
		SessionTimeout:   5 * time.Second,
		LoginTimeout:     5 * time.Second,
		DataTimeout:      2 * time.Second,
		RootDirectory:    t.TempDir(),
		AllowAnonymous:   true,
	}
}

func newTestStore(t *testing.T, cfg *config.Config) *userstore.Store {
	t.Helper()

	store, err := userstore.Open(afero.NewMemMapFs(), "users.json")
	require.NoError(t, err)

	require.NoError(t, store.Bootstrap(cfg.RootDirectory))

	digest, err := userstore.HashPassword(authPass)
	require.NoError(t, err)

	require.NoError(t, store.Insert(userstore.Record{
		Username: authUser,
		Password: &digest,
		Home:     cfg.RootDirectory + "/" + authUser,
	}))

	return store
}

// NewTestServer provides a started test server, stopped when the test ends.
func NewTestServer(t *testing.T) *FtpServer {
	return NewTestServerWithConfig(t, testConfig(t))
}

// NewTestServerWithConfig provides a server instantiated with some settings
func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *FtpServer {
	t.Helper()

	server := NewFtpServer(cfg, newTestStore(t, cfg))

	require.NoError(t, server.Listen())

	go func() {
		if err := server.Serve(); err != nil {
			server.Logger.Error("problem serving", "err", err)
		}
	}()

	t.Cleanup(func() {
		if err := server.Stop(); err != nil && err != ErrNotListening {
			t.Errorf("could not stop server: %v", err)
		}
	})

	return server
}

// newFtpClient returns a connected goftp client, closed when the test ends.
func newFtpClient(t *testing.T, server *FtpServer) *goftp.Client {
	t.Helper()

	conf := goftp.Config{
		User:        authUser,
		Password:    authPass,
		DisableEPSV: true,
	}

	client, err := goftp.DialConfig(conf, server.Addr())
	require.NoError(t, err, "Couldn't connect")

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("could not close client: %v", err)
		}
	})

	return client
}

// newClientWithRawConn returns a logged-in raw connection on a test
// server. The resources are closed automatically when the test ends.
func newClientWithRawConn(t *testing.T, server *FtpServer) goftp.RawConn {
	t.Helper()

	client := newFtpClient(t, server)

	raw, err := client.OpenRawConn()
	require.NoError(t, err, "Couldn't open raw connection")

	t.Cleanup(func() { _ = raw.Close() })

	return raw
}

func sendAndCheck(t *testing.T, raw goftp.RawConn, cmd string, expected int) string {
	t.Helper()

	code, response, err := raw.SendCommand(cmd)
	require.NoError(t, err)
	require.Equal(t, expected, code, response)

	return response
}

// openRawDataConn drives PASV by hand: it parses the advertisement and
// dials it, which unblocks the server's accept.
func openRawDataConn(t *testing.T, raw goftp.RawConn) net.Conn {
	t.Helper()

	code, response, err := raw.SendCommand("PASV")
	require.NoError(t, err)
	require.Equal(t, StatusEnteringPASV, code, response)

	start := strings.Index(response, "(")
	end := strings.LastIndex(response, ")")
	require.True(t, start >= 0 && end > start, "malformed PASV reply: %q", response)

	parts := strings.Split(response[start+1:end], ",")
	require.Len(t, parts, 6)

	p1, err := strconv.Atoi(parts[4])
	require.NoError(t, err)
	p2, err := strconv.Atoi(parts[5])
	require.NoError(t, err)

	addr := fmt.Sprintf("%s.%s.%s.%s:%d", parts[0], parts[1], parts[2], parts[3], p1*256+p2)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// rawControlConn dials the control port without any client logic on top.
func rawControlConn(t *testing.T, server *FtpServer) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", server.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return conn, bufio.NewReader(conn)
}

func readReplyLine(t *testing.T, reader *bufio.Reader) string {
	t.Helper()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	return strings.TrimRight(line, "\r\n")
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()

	_, err := conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

func drainData(t *testing.T, conn net.Conn) string {
	t.Helper()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	return string(data)
}
