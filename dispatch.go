package main

import (
	"context"
	"log/slog"

	"golang.org/x/sys/unix"
)

// dispatch is the readiness loop. Each cycle it snapshots the armed
// descriptors, polls them together with the listener, accepts new
// clients (subject to admission control), and hands readable clients
// to the work queue. A client descriptor is cleared from the readiness
// set before it is enqueued, so it is owned by exactly one of the set,
// the queue, or a worker at any instant.
func (s *Server) dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			slog.Debug("dispatcher stopping")
			return
		}

		pfds := s.pollSet()
		timeout := unix.NsecToTimespec(pollInterval.Nanoseconds())
		n, err := unix.Ppoll(pfds, &timeout, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			slog.Error("poll failed", "err", err)
			return
		}
		if n == 0 {
			continue
		}

		for _, p := range pfds {
			if p.Revents == 0 {
				continue
			}
			fd := int(p.Fd)
			if fd == s.listenFD {
				s.acceptClient()
				continue
			}
			// Hangups and errors are handed to a worker too; its
			// read fails and tears the connection down properly.
			s.disarm(fd)
			if !s.queue.Enqueue(fd) {
				// Queue full. Re-arm so the readiness edge is not
				// lost; the next cycle retries.
				s.arm(fd)
			}
		}
	}
}

// pollSet builds the poll descriptor list: the listener plus every
// armed client.
func (s *Server) pollSet() []unix.PollFd {
	s.mu.Lock()
	defer s.mu.Unlock()
	pfds := make([]unix.PollFd, 0, len(s.armed)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(s.listenFD), Events: unix.POLLIN})
	for fd := range s.armed {
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return pfds
}

// acceptClient admits one pending connection unless the online cap is
// reached, in which case the connection is left pending and retried on
// a later cycle.
func (s *Server) acceptClient() {
	if s.reg.Online() >= s.cfg.MaxConnections {
		slog.Debug("connection cap reached, accept deferred",
			"online", s.reg.Online(), "max", s.cfg.MaxConnections)
		return
	}
	fd, _, err := unix.Accept(s.listenFD)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EINTR {
			slog.Warn("accept failed", "err", err)
		}
		return
	}
	s.addConn(fd)
	slog.Debug("client accepted", "fd", fd)
}
