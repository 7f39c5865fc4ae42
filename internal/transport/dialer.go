package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"
)

// DefaultConnectTimeout and DefaultHandshakeTimeout bound how long dialing
// and the TLS handshake may take before the originating session fails.
const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// DialTCP opens a raw TCP connection to host:port.
func DialTCP(ctx context.Context, host string, port int) (net.Conn, error) {
	dialer := net.Dialer{Timeout: DefaultConnectTimeout}
	return dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

// DialTLS opens a TCP connection to host:port and performs a TLS handshake
// over it, loading a client certificate/key pair for mutual auth.
func DialTLS(ctx context.Context, host string, port int, files TLSFiles) (net.Conn, error) {
	raw, err := DialTCP(ctx, host, port)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	if files.CertFile != "" && files.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	conn := tls.Client(raw, cfg)
	hsCtx, cancel := context.WithTimeout(ctx, DefaultHandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// DialLocal opens a connection to a Unix domain socket at path.
func DialLocal(ctx context.Context, path string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: DefaultConnectTimeout}
	return dialer.DialContext(ctx, "unix", path)
}

// removeStaleSocket clears a leftover socket file from a previous process
// so ListenLocal doesn't fail with "address already in use" after a crash.
func removeStaleSocket(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.Mode()&os.ModeSocket == 0 {
		return nil
	}
	return os.Remove(path)
}
