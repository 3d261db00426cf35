package main

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neovim/go-client/nvim"

	"nextedit/buffer"
	"nextedit/client/openai"
	"nextedit/engine"
	"nextedit/logger"
	"nextedit/metrics"
	"nextedit/prompt"
	"nextedit/types"
)

type Daemon struct {
	config       Config
	orchestrator *engine.Orchestrator
	listener     net.Listener
	socketPath   string
	pidPath      string
	clientCount  int64
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewDaemon(config Config) (*Daemon, error) {
	opts := config.Options()

	apiClient := openai.NewClient(config.ProviderURL, config.ProviderAPIKey)
	apiClient.Compress = config.CompressRequests

	var predictor types.CursorPredictor
	if config.PredictorModel != "" {
		predictor = openai.NewPredictor(apiClient, config.PredictorModel)
	}

	var tracker engine.Tracker
	if config.MetricsURL != "" {
		tracker = metrics.NewTracker(config.MetricsURL, config.ProviderAPIKey, "nvim", config.DataDir)
	}

	prompts := prompt.NewBuilder(4*opts.WindowTokenCap, opts.NoEditSentinel)

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:       config,
		orchestrator: engine.NewOrchestrator(apiClient, prompts, predictor, opts, tracker),
		socketPath:   getSocketPath(),
		pidPath:      getPidPath(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	log.Printf("daemon listening on socket: %s", d.socketPath)

	d.setupShutdownHandling()
	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	log.Printf("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return // Server is shutting down
			default:
				log.Printf("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		log.Printf("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		log.Printf("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("error creating nvim client: %v", err)
		return
	}

	sess := newSession(d.ctx, d.orchestrator)
	if err := n.RegisterHandler("nextedit_request", func(n *nvim.Nvim) {
		sess.requestEdit(n)
	}); err != nil {
		log.Printf("error registering handler: %v", err)
		return
	}
	if err := n.RegisterHandler("nextedit_cancel", func(n *nvim.Nvim) {
		sess.cancelInflight()
	}); err != nil {
		log.Printf("error registering handler: %v", err)
		return
	}

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			log.Printf("error serving connection: %v", err)
		}
	}
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					log.Printf("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	// Normal mode: wait for timeout period before shutting down
	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				log.Printf("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		log.Printf("warning: could not write PID file: %v", err)
	}
	log.Printf("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not remove PID file: %v", err)
	}
}

// session holds per-connection edit state: the mirrored buffer and the
// single in-flight request slot. A new request supersedes the previous
// one by cancelling its context.
type session struct {
	parent       context.Context
	orchestrator *engine.Orchestrator

	mu       sync.Mutex
	buf      *buffer.NvimBuffer
	inflight context.CancelFunc
	lastEdit time.Time
}

func newSession(parent context.Context, orch *engine.Orchestrator) *session {
	return &session{parent: parent, orchestrator: orch}
}

// requestEdit snapshots the buffer and kicks off a next-edit run. It runs
// on the RPC dispatch goroutine, so all slow work moves off of it.
func (s *session) requestEdit(n *nvim.Nvim) {
	s.mu.Lock()
	if s.inflight != nil {
		s.inflight()
	}

	if s.buf == nil {
		b, err := buffer.Acquire(n)
		if err != nil {
			s.mu.Unlock()
			logger.Error("failed to acquire buffer: %v", err)
			return
		}
		s.buf = b
	} else if err := s.buf.Sync(); err != nil {
		s.mu.Unlock()
		logger.Error("failed to sync buffer: %v", err)
		return
	}

	req := s.buf.Request()
	requestedAt := time.Now()
	s.lastEdit = requestedAt
	req.LastTypedAt = requestedAt
	req.TypedSince = func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastEdit.After(requestedAt)
	}

	ctx, cancel := context.WithCancel(s.parent)
	s.inflight = cancel
	buf := s.buf
	s.mu.Unlock()

	go func() {
		defer cancel()
		res := s.orchestrator.Run(ctx, req, func(edit *types.StreamedEdit) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if err := buf.Apply(edit.Replacement); err != nil {
				logger.Error("failed to apply edit: %v", err)
			}
		})

		if res.CursorTarget != nil {
			s.mu.Lock()
			if ctx.Err() == nil {
				if err := buf.MoveCursor(res.CursorTarget.Line); err != nil {
					logger.Error("failed to move cursor: %v", err)
				}
			}
			s.mu.Unlock()
		}
	}()
}

// cancelInflight aborts the current run, if any.
func (s *session) cancelInflight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.lastEdit = time.Now()
}
