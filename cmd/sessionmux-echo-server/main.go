package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sessionmux/sessionmux"
	"github.com/sessionmux/sessionmux/internal/config"
	"github.com/sessionmux/sessionmux/internal/logging"
)

// echoTarget answers every single-block stream frame by sending the same
// bytes back as a new dynamic stream frame, and logs every session/multi-block
// event.
type echoTarget struct{}

func (echoTarget) OnSession(session *sessionmux.Session, opened bool, identifier uint64) {
	if opened {
		logging.Infof("session %d opened identifier=%#x", session.SessionID(), identifier)
		return
	}
	logging.Infof("session %d closed", session.SessionID())
}

func (echoTarget) OnData(session *sessionmux.Session, isStream bool, data []byte) {
	if !isStream {
		logging.Infof("session %d received multi-block payload size=%d", session.SessionID(), len(data))
		return
	}
	logging.Infof("session %d received stream payload size=%d, echoing", session.SessionID(), len(data))
	session.SendStreamData(data, true, false)
}

func (echoTarget) OnError(session *sessionmux.Session, code sessionmux.ErrorCode, message string) {
	logging.Warnf("session %d error code=%s message=%s", session.SessionID(), code, message)
}

func main() {
	var port int
	var configPath string
	flag.IntVar(&port, "port", 7900, "TCP port to listen on")
	flag.StringVar(&configPath, "config", "", "optional TOML config path")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logging.Errf("sessionmux-echo-server: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	controller := sessionmux.NewController(echoTarget{}, cfg)
	defer controller.Shutdown()

	serverID, err := controller.AddTCPServer(port)
	if err != nil {
		logging.Errf("sessionmux-echo-server: %v", err)
		os.Exit(1)
	}
	fmt.Printf("listening on :%d (server id %d)\n", port, serverID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("shutting down")
}
