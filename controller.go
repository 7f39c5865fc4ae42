package sessionmux

import (
	"context"
	"fmt"
	"net"

	"github.com/sessionmux/sessionmux/internal/config"
	"github.com/sessionmux/sessionmux/internal/logging"
	"github.com/sessionmux/sessionmux/internal/observability"
	"github.com/sessionmux/sessionmux/internal/registry"
	"github.com/sessionmux/sessionmux/internal/sessiontimer"
	"github.com/sessionmux/sessionmux/internal/transport"
)

// Controller is the process-wide service object: it owns the session and
// server registries, the timer thread, and the user's callback sink. Create
// one before opening the first server or session; call Shutdown once all
// servers and sessions are closed.
type Controller struct {
	handler   *registry.Handler
	table     *sessiontimer.Table
	scheduler *sessiontimer.Scheduler
	target    Target

	maxFrameSize   uint32
	metricsEnabled bool
}

// serverHandle adapts a transport.Server to registry.ServerEntry.
type serverHandle struct {
	id     uint32
	server *transport.Server
}

func (h *serverHandle) ServerID() uint32 { return h.id }
func (h *serverHandle) Close() error     { return h.server.Close() }

// NewController builds a controller bound to target and cfg, and starts its
// timer thread. cfg.MaxFrameSize of 0 disables the oversized-frame guard.
func NewController(target Target, cfg config.Config) *Controller {
	observability.RegisterMetrics()

	table := sessiontimer.NewTable()
	scheduler := sessiontimer.NewScheduler(table, cfg.HeartbeatInterval, cfg.ReplyTimeout)
	c := &Controller{
		handler:        registry.NewHandler(),
		table:          table,
		scheduler:      scheduler,
		target:         target,
		maxFrameSize:   cfg.MaxFrameSize,
		metricsEnabled: true,
	}
	go scheduler.Run()
	return c
}

func (c *Controller) recordFrame(direction string, msgType uint8) {
	observability.RecordFrame(direction, msgType)
}

// noteSessionCountChanged refreshes the active-session gauge; called after
// a session registers or deregisters.
func (c *Controller) noteSessionCountChanged() {
	observability.SetSessionsActive(c.handler.SessionCount())
}

// AddTCPServer opens a raw TCP listener on port and begins accepting
// sessions on it. Returns the server's registry id.
func (c *Controller) AddTCPServer(port int) (uint32, error) {
	ln, err := transport.Listen(port)
	if err != nil {
		return 0, err
	}
	return c.registerServer(ln), nil
}

// AddTLSTCPServer opens a TLS-wrapped TCP listener on port, loading the
// server certificate/key from certFile/keyFile.
func (c *Controller) AddTLSTCPServer(port int, certFile, keyFile string) (uint32, error) {
	ln, err := transport.ListenTLS(port, transport.TLSFiles{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		return 0, err
	}
	return c.registerServer(ln), nil
}

// AddLocalServer opens a Unix domain socket listener at path.
func (c *Controller) AddLocalServer(path string) (uint32, error) {
	ln, err := transport.ListenLocal(path)
	if err != nil {
		return 0, err
	}
	return c.registerServer(ln), nil
}

func (c *Controller) registerServer(ln net.Listener) uint32 {
	handle := &serverHandle{}
	handle.server = transport.NewServer(ln, c.acceptSession)
	handle.id = c.handler.AddServer(handle)
	go func() {
		_ = handle.server.Serve()
	}()
	return handle.id
}

// acceptSession is the per-listener connection handler: it builds a
// server-side session and runs connectiSession with init=false — the
// session waits in SESSION_NOT_READY for the peer's Session_Init_Start.
func (c *Controller) acceptSession(conn net.Conn) {
	logging.Infof("accepted connection from %s", conn.RemoteAddr())
	s := newSession(c, conn, false)
	s.connectiSession(0, 0, false)
}

// StartTCPSession dials host:port over raw TCP and originates a session
// carrying identifier.
func (c *Controller) StartTCPSession(host string, port int, identifier uint64) (*Session, error) {
	conn, err := transport.DialTCP(context.Background(), host, port)
	if err != nil {
		return nil, err
	}
	return c.startClientSession(conn, identifier), nil
}

// StartTLSTCPSession dials host:port, performs a TLS handshake using
// certFile/keyFile as the client certificate, and originates a session.
func (c *Controller) StartTLSTCPSession(host string, port int, certFile, keyFile string, identifier uint64) (*Session, error) {
	conn, err := transport.DialTLS(context.Background(), host, port, transport.TLSFiles{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		return nil, err
	}
	return c.startClientSession(conn, identifier), nil
}

// StartLocalSession dials the Unix domain socket at path and originates a
// session.
func (c *Controller) StartLocalSession(path string, identifier uint64) (*Session, error) {
	conn, err := transport.DialLocal(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return c.startClientSession(conn, identifier), nil
}

func (c *Controller) startClientSession(conn net.Conn, identifier uint64) *Session {
	s := newSession(c, conn, true)
	offeredID := registry.RandomNonZeroU32(nil, c.handler.HasSession)
	s.connectiSession(offeredID, identifier, true)
	return s
}

// CloseServer stops accepting connections on the server registered under
// id and deregisters it.
func (c *Controller) CloseServer(id uint32) error {
	entry, ok := c.handler.GetServer(id)
	if !ok {
		return fmt.Errorf("sessionmux: no server with id %d", id)
	}
	c.handler.RemoveServer(id)
	return entry.Close()
}

// CloseSession requests a graceful, reply-expected close of the session
// registered under id.
func (c *Controller) CloseSession(id uint32) error {
	sess, ok := c.GetSession(id)
	if !ok {
		return fmt.Errorf("sessionmux: no session with id %d", id)
	}
	if !sess.CloseSession(true) {
		return fmt.Errorf("sessionmux: session %d not in SESSION_READY", id)
	}
	return nil
}

// GetSession looks up a live session by id.
func (c *Controller) GetSession(id uint32) (*Session, bool) {
	entry, ok := c.handler.GetSession(id)
	if !ok {
		return nil, false
	}
	sess, ok := entry.(*Session)
	return sess, ok
}

// Shutdown tears down every registered session with init=true and stops the
// timer thread. Listening servers are left to the caller to close via
// CloseServer.
func (c *Controller) Shutdown() {
	c.handler.ClearAllSessions()
	c.scheduler.Stop()
}
