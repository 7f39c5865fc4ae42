package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/sessionmux/sessionmux"
	"github.com/sessionmux/sessionmux/internal/config"
	"github.com/sessionmux/sessionmux/internal/logging"
)

// waitTarget collects every callback so main can block for session
// readiness and the echoed stream payload. Multi-block deliveries are
// queued on blocks; main does not wait for them.
type waitTarget struct {
	mu       sync.Mutex
	ready    chan struct{}
	readyHit bool
	echoes   chan []byte
	blocks   chan []byte
}

func newWaitTarget() *waitTarget {
	return &waitTarget{
		ready:  make(chan struct{}),
		echoes: make(chan []byte, 8),
		blocks: make(chan []byte, 8),
	}
}

func (w *waitTarget) OnSession(session *sessionmux.Session, opened bool, identifier uint64) {
	if !opened {
		logging.Infof("session %d closed", session.SessionID())
		return
	}
	logging.Infof("session %d ready identifier=%#x", session.SessionID(), identifier)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.readyHit {
		w.readyHit = true
		close(w.ready)
	}
}

func (w *waitTarget) OnData(session *sessionmux.Session, isStream bool, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	if isStream {
		w.echoes <- cp
		return
	}
	w.blocks <- cp
}

func (w *waitTarget) OnError(session *sessionmux.Session, code sessionmux.ErrorCode, message string) {
	logging.Warnf("session %d error code=%s message=%s", session.SessionID(), code, message)
}

func main() {
	var host string
	var port int
	var blockSize int
	flag.StringVar(&host, "host", "127.0.0.1", "server host")
	flag.IntVar(&port, "port", 7900, "server port")
	flag.IntVar(&blockSize, "block-size", 1<<20, "multi-block payload size in bytes")
	flag.Parse()

	logging.ConfigureRuntime()

	target := newWaitTarget()
	controller := sessionmux.NewController(target, config.Default())
	defer controller.Shutdown()

	session, err := controller.StartTCPSession(host, port, 0xDEADBEEF)
	if err != nil {
		logging.Errf("sessionmux-echo-client: %v", err)
		os.Exit(1)
	}

	select {
	case <-target.ready:
	case <-time.After(5 * time.Second):
		logging.Errf("sessionmux-echo-client: handshake timed out")
		os.Exit(1)
	}

	payload := []byte("hello over sessionmux")
	session.SendStreamData(payload, true, false)
	select {
	case echoed := <-target.echoes:
		if !bytes.Equal(echoed, payload) {
			logging.Errf("sessionmux-echo-client: echo mismatch got %q want %q", echoed, payload)
			os.Exit(1)
		}
		fmt.Printf("stream echo ok: %q\n", echoed)
	case <-time.After(5 * time.Second):
		logging.Errf("sessionmux-echo-client: stream echo timed out")
		os.Exit(1)
	}

	block := make([]byte, blockSize)
	rand.New(rand.NewSource(time.Now().UnixNano())).Read(block)
	id := session.SendMultiblockData(block)
	if id == 0 {
		logging.Errf("sessionmux-echo-client: multi-block send rejected")
		os.Exit(1)
	}
	fmt.Printf("sent multi-block id=%d size=%d\n", id, len(block))

	if err := controller.CloseSession(session.SessionID()); err != nil {
		logging.Warnf("sessionmux-echo-client: close session: %v", err)
	}
}
