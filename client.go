package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"nextedit/logger"
)

const daemonStartTimeout = 5 * time.Second

// Relay bridges the editor's stdio to the daemon socket, spawning the
// daemon first if none is listening.
type Relay struct {
	socketPath string
}

func NewRelay() *Relay {
	return &Relay{socketPath: getSocketPath()}
}

// Run ensures a daemon exists, then pipes stdin/stdout over the socket
// until either side closes.
func (r *Relay) Run() error {
	if err := r.ensureDaemon(); err != nil {
		return err
	}

	conn, err := net.Dial("unix", r.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		io.Copy(conn, os.Stdin)
		conn.Close()
	}()
	io.Copy(os.Stdout, conn)
	return nil
}

func (r *Relay) ensureDaemon() error {
	if running, pid := isDaemonRunning(); running {
		logger.Debug("reusing daemon (pid %d)", pid)
		return nil
	}

	logger.Debug("no daemon listening, spawning one")
	_, err := os.StartProcess(os.Args[0], []string{os.Args[0], "--daemon"}, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if running, pid := isDaemonRunning(); running {
			logger.Debug("daemon up (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not come up within %s", daemonStartTimeout)
}
