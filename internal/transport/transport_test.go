package transport

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sessionmux/sessionmux/internal/testutil/tlstest"
)

func echoOnce(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	_, _ = conn.Write(buf[:n])
}

func TestTCPListenAndDialRoundTrip(t *testing.T) {
	ln, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(ln, echoOnce)
	go srv.Serve()
	defer srv.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	conn, err := DialTCP(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echo, got %q", buf)
	}
}

func TestTLSDialRejectsUntrustedServerCert(t *testing.T) {
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "sessionmux-test-ca")
	certFile, keyFile := ca.IssueServerCert(t, dir, "127.0.0.1", nil, []net.IP{net.ParseIP("127.0.0.1")})

	ln, err := ListenTLS(0, TLSFiles{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("listen tls: %v", err)
	}
	srv := NewServer(ln, echoOnce)
	go srv.Serve()
	defer srv.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := DialTLS(ctx, "127.0.0.1", port, TLSFiles{})
	if err == nil {
		conn.Close()
		t.Fatalf("expected dial without trusting the test CA to fail verification")
	}
}

func TestLocalListenAndDialRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessionmux-test.sock")
	ln, err := ListenLocal(path)
	if err != nil {
		t.Fatalf("listen local: %v", err)
	}
	srv := NewServer(ln, echoOnce)
	go srv.Serve()
	defer srv.Close()

	conn, err := DialLocal(context.Background(), path)
	if err != nil {
		t.Fatalf("dial local: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("pong")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "pong" {
		t.Fatalf("expected echo, got %q", buf)
	}
}

func TestListenLocalRemovesStaleSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	first, err := ListenLocal(path)
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	// Simulate a crash: the socket file is left behind without closing
	// through the net package's cleanup.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected socket file to exist: %v", err)
	}
	first.(*net.UnixListener).SetUnlinkOnClose(false)
	first.Close()

	second, err := ListenLocal(path)
	if err != nil {
		t.Fatalf("second listen after stale socket: %v", err)
	}
	second.Close()
}

func TestServerCloseUnblocksServe(t *testing.T) {
	ln, err := Listen(0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(ln, echoOnce)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	srv.Close()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
}
