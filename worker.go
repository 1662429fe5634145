package main

import (
	"errors"
	"io"
	"log/slog"

	"chatty/server/internal/protocol"
	"chatty/server/internal/queue"
)

// worker serves requests one at a time: dequeue a ready descriptor,
// read one full frame, execute it, and either re-arm the descriptor or
// tear the connection down. The shutdown sentinel ends the loop.
func (s *Server) worker(id int) {
	defer s.wg.Done()
	for {
		fd, ok := s.queue.Dequeue()
		if !ok || fd == queue.Shutdown {
			slog.Debug("worker exiting", "worker", id)
			return
		}
		conn := s.conn(fd)
		if conn == nil {
			// Torn down between enqueue and dequeue.
			continue
		}

		msg, err := protocol.ReadMsg(conn)
		if err != nil {
			s.dropClient(fd, err)
			continue
		}

		if err := s.execute(conn, msg); err != nil {
			nick, _ := s.reg.NickByFD(fd)
			slog.Warn("request failed, disconnecting client",
				"worker", id, "fd", fd, "nick", nick, "op", msg.Hdr.Op.String(), "err", err)
			s.dropClient(fd, err)
			continue
		}
		s.arm(fd)
	}
}

// dropClient performs an implicit disconnect: resolve the user through
// the fd reverse map, take them offline if they were online, and close
// the descriptor. Safe to call for a client that already disconnected
// explicitly; the registry call is then a no-op.
func (s *Server) dropClient(fd int, cause error) {
	nick, err := s.reg.Disconnect("", fd)
	if err == nil {
		s.stats.Add(0, -1, 0, 0, 0, 0, 0)
	}
	s.removeConn(fd)

	if errors.Is(cause, io.EOF) {
		slog.Debug("client closed connection", "fd", fd, "nick", nick)
	} else {
		slog.Debug("client dropped", "fd", fd, "nick", nick, "cause", cause)
	}
}
