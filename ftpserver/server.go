package ftpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	log "github.com/fclairamb/go-log"
	lognoop "github.com/fclairamb/go-log/noop"
	"github.com/spf13/afero"

	"github.com/wasu-code/basic-ftp/config"
	"github.com/wasu-code/basic-ftp/metrics"
	"github.com/wasu-code/basic-ftp/userstore"
)

// ErrNotListening is returned when we are performing an action that is only valid while listening
var ErrNotListening = errors.New("we aren't listening")

// acceptPollInterval is the deadline applied to each Accept call so the
// serve loop notices a stop request without an inbound connection.
const acceptPollInterval = time.Second

// FtpServer is the control-plane acceptor. It owns the listening socket and
// the registry of live sessions.
type FtpServer struct {
	Logger        log.Logger        // Server logging
	Collector     metrics.Collector // Metrics sink, no-op by default
	config        *config.Config    // Immutable process configuration
	store         *userstore.Store  // User records, read-only at runtime
	fs            afero.Fs          // Filesystem the sessions operate on
	listener      *net.TCPListener  // Control listener
	clientCounter uint32            // Clients counter
	clients       map[uint32]*clientHandler
	clientsMutex  sync.Mutex
	clientsWg     sync.WaitGroup
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewFtpServer creates a new FtpServer instance serving the given
// configuration and user store on the operating system filesystem.
func NewFtpServer(cfg *config.Config, store *userstore.Store) *FtpServer {
	return NewFtpServerWithFs(cfg, store, afero.NewOsFs())
}

// NewFtpServerWithFs creates an FtpServer on an arbitrary filesystem.
func NewFtpServerWithFs(cfg *config.Config, store *userstore.Store, fs afero.Fs) *FtpServer {
	return &FtpServer{
		Logger:    lognoop.NewNoOpLogger(),
		Collector: &metrics.NoopCollector{},
		config:    cfg,
		store:     store,
		fs:        fs,
		clients:   make(map[uint32]*clientHandler),
		stop:      make(chan struct{}),
	}
}

// Listen binds the control socket. A port already held by another process
// gets its own diagnostic since it is the most common startup failure.
func (server *FtpServer) Listen() error {
	addr, err := net.ResolveTCPAddr("tcp4", server.config.ListenAddr())
	if err != nil {
		return newNetworkError("invalid listen address", err)
	}

	server.listener, err = net.ListenTCP("tcp4", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return newNetworkError(
				fmt.Sprintf("control port %d is already in use, is another server running?", server.config.Port),
				err,
			)
		}

		return newNetworkError("cannot listen on control port", err)
	}

	server.Logger.Info("Listening...", "address", server.listener.Addr())

	return nil
}

// Serve accepts and processes any new incoming client until Stop is called.
func (server *FtpServer) Serve() error {
	if server.listener == nil {
		return ErrNotListening
	}

	for {
		if server.stopRequested() {
			return nil
		}

		if err := server.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			if server.stopRequested() {
				return nil
			}

			return newNetworkError("cannot set accept deadline", err)
		}

		connection, err := server.listener.AcceptTCP()
		if err != nil {
			if server.stopRequested() {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			server.Logger.Error("Listener accept error", "err", err)

			return newNetworkError("listener accept error", err)
		}

		server.clientArrival(connection)
	}
}

// ListenAndServe simply chains the Listen and Serve method calls
func (server *FtpServer) ListenAndServe() error {
	if err := server.Listen(); err != nil {
		return err
	}

	server.Logger.Info("Starting...")

	return server.Serve()
}

// Addr shows the listening address
func (server *FtpServer) Addr() string {
	if server.listener != nil {
		return server.listener.Addr().String()
	}

	return ""
}

// Stop closes the listener and waits for the in-flight sessions to drain.
func (server *FtpServer) Stop() error {
	if server.listener == nil {
		return ErrNotListening
	}

	server.stopOnce.Do(func() {
		close(server.stop)
	})

	err := server.listener.Close()

	server.clientsWg.Wait()

	return err
}

func (server *FtpServer) stopRequested() bool {
	select {
	case <-server.stop:
		return true
	default:
		return false
	}
}

// clientArrival registers a new session and starts its command loop.
func (server *FtpServer) clientArrival(conn net.Conn) {
	server.clientsMutex.Lock()
	server.clientCounter++
	c := server.newClientHandler(conn, server.clientCounter)
	server.clients[c.id] = c
	server.clientsMutex.Unlock()

	server.clientsWg.Add(1)
	server.Collector.SessionOpened()

	go func() {
		defer server.clientsWg.Done()
		c.HandleCommands()
	}()

	server.Logger.Info("Client connected", "clientId", c.id, "remoteAddr", conn.RemoteAddr())
}

// clientDeparture removes a session from the registry.
func (server *FtpServer) clientDeparture(c *clientHandler) {
	server.clientsMutex.Lock()
	delete(server.clients, c.id)
	server.clientsMutex.Unlock()

	server.Collector.SessionClosed()

	server.Logger.Info("Client disconnected", "clientId", c.id)
}

// ClientCount returns the number of live sessions.
func (server *FtpServer) ClientCount() int {
	server.clientsMutex.Lock()
	defer server.clientsMutex.Unlock()

	return len(server.clients)
}
