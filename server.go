package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"chatty/server/internal/config"
	"chatty/server/internal/filestore"
	"chatty/server/internal/protocol"
	"chatty/server/internal/queue"
	"chatty/server/internal/registry"
	"chatty/server/internal/stats"
)

// Server owns every piece of shared state: the listening socket, the
// connection table, the readiness set, the user registry, the work
// queue, and the counters. It is built once at startup and handed to
// the dispatcher and the workers; there are no package-level
// singletons.
type Server struct {
	cfg   *config.Config
	reg   *registry.Registry
	stats *stats.Stats
	queue *queue.Queue
	files *filestore.Store

	// mu guards conns and armed. A descriptor present in armed is
	// owned by the dispatcher; one absent from armed but present in
	// conns is either queued or being serviced by a worker.
	mu    sync.Mutex
	conns map[int]*protocol.Conn
	armed map[int]struct{}

	listenFD int
	wg       sync.WaitGroup
}

// NewServer wires the shared state together. The work queue is sized
// to the connection cap so the dispatcher can never have more queued
// descriptors than live clients.
func NewServer(cfg *config.Config, reg *registry.Registry, st *stats.Stats, files *filestore.Store) *Server {
	return &Server{
		cfg:      cfg,
		reg:      reg,
		stats:    st,
		queue:    queue.New(cfg.MaxConnections),
		files:    files,
		conns:    make(map[int]*protocol.Conn),
		armed:    make(map[int]struct{}),
		listenFD: -1,
	}
}

// Listen binds the unix socket, removing any stale socket file first.
func (s *Server) Listen() error {
	_ = os.Remove(s.cfg.UnixPath)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: s.cfg.UnixPath}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind %s: %w", s.cfg.UnixPath, err)
	}
	if err := unix.Listen(fd, acceptBacklog); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listen %s: %w", s.cfg.UnixPath, err)
	}
	s.listenFD = fd
	slog.Info("listening", "path", s.cfg.UnixPath)
	return nil
}

// Run starts the worker pool, runs the dispatcher until ctx is
// cancelled, then drains and joins the workers and tears down every
// connection.
func (s *Server) Run(ctx context.Context) error {
	if s.listenFD < 0 {
		return fmt.Errorf("server is not listening")
	}

	for i := 0; i < s.cfg.ThreadsInPool; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	slog.Debug("worker pool started", "workers", s.cfg.ThreadsInPool)

	s.dispatch(ctx)

	// Shutdown: stop accepting, let workers finish queued requests,
	// then close every remaining connection.
	_ = unix.Close(s.listenFD)
	s.queue.Close()
	s.wg.Wait()

	s.mu.Lock()
	for fd, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, fd)
		delete(s.armed, fd)
	}
	s.mu.Unlock()

	_ = os.Remove(s.cfg.UnixPath)
	slog.Info("server stopped")
	return nil
}

// addConn registers a freshly accepted descriptor and arms it.
func (s *Server) addConn(fd int) *protocol.Conn {
	conn := protocol.NewConn(fd)
	s.mu.Lock()
	s.conns[fd] = conn
	s.armed[fd] = struct{}{}
	s.mu.Unlock()
	return conn
}

// conn looks up the connection for fd.
func (s *Server) conn(fd int) *protocol.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[fd]
}

// arm puts fd back under dispatcher ownership.
func (s *Server) arm(fd int) {
	s.mu.Lock()
	if _, ok := s.conns[fd]; ok {
		s.armed[fd] = struct{}{}
	}
	s.mu.Unlock()
}

// disarm removes fd from the readiness set before it is queued, so
// exactly one worker ever owns it.
func (s *Server) disarm(fd int) {
	s.mu.Lock()
	delete(s.armed, fd)
	s.mu.Unlock()
}

// removeConn drops a connection from the table and closes it. The
// caller has already handled the registry side.
func (s *Server) removeConn(fd int) {
	s.mu.Lock()
	conn := s.conns[fd]
	delete(s.conns, fd)
	delete(s.armed, fd)
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
