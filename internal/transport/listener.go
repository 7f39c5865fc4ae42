// Package transport provides the TCP/TLS/local-stream-socket listener and
// dialer helpers the controller uses to accept and originate sessions, plus
// the per-listener accept loop that hands each new connection off to a
// caller-supplied handler.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/sessionmux/sessionmux/internal/logging"
)

// TLSFiles names the certificate/key pair a server-side TLS listener loads.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

// Listen opens a raw TCP listener on the given port.
func Listen(port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", port))
}

// ListenTLS opens a TLS-wrapped TCP listener on the given port, loading the
// server certificate/key from files.
func ListenTLS(port int, files TLSFiles) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	return tls.Listen("tcp", fmt.Sprintf(":%d", port), cfg)
}

// ListenLocal opens a Unix domain socket listener at path. Any stale socket
// file left behind by a prior crashed process is removed first.
func ListenLocal(path string) (net.Listener, error) {
	_ = removeStaleSocket(path)
	return net.Listen("unix", path)
}

// Server runs an accept loop on a listener, handing each accepted
// connection to handler on its own goroutine, until Close is called.
type Server struct {
	ln       net.Listener
	handler  func(net.Conn)
	closing  chan struct{}
}

// NewServer wraps ln in an accept loop. Call Serve on its own goroutine.
func NewServer(ln net.Listener, handler func(net.Conn)) *Server {
	return &Server{ln: ln, handler: handler, closing: make(chan struct{})}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closing:
				return nil
			default:
			}
			logging.Errf("transport: accept on %s failed: %v", s.ln.Addr(), err)
			return err
		}
		logging.Debugf("transport: accepted connection from %s on %s", conn.RemoteAddr(), s.ln.Addr())
		go s.handler(conn)
	}
}

// Close shuts down the listener, unblocking Serve.
func (s *Server) Close() error {
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	return s.ln.Close()
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}
