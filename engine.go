package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"chatty/server/internal/filestore"
	"chatty/server/internal/protocol"
	"chatty/server/internal/registry"
)

// execute serves one request and writes exactly one reply header (plus
// data blocks where the operation calls for them) back to the client.
// A nil return means the connection stays up and goes back to the
// dispatcher; an error tells the worker to disconnect and close it.
func (s *Server) execute(conn *protocol.Conn, msg protocol.Message) error {
	if msg.Hdr.Sender == "" {
		_ = conn.SendHeader(protocol.Header{Op: protocol.OpFail})
		return errors.New("request without sender")
	}
	// A full name field with no terminator decodes to a sender one byte
	// over the nickname bound; such a name could never be re-encoded on
	// an outbound delivery, so the request is refused up front.
	if len(msg.Hdr.Sender) > protocol.MaxNameLength {
		_ = conn.SendHeader(protocol.Header{Op: protocol.OpFail})
		return fmt.Errorf("sender %q longer than %d bytes", msg.Hdr.Sender, protocol.MaxNameLength)
	}

	if msg.Hdr.Op.Request() {
		switch msg.Hdr.Op {
		case protocol.RegisterOp:
			return s.opRegister(conn, msg)
		case protocol.ConnectOp:
			return s.opConnect(conn, msg)
		case protocol.PostTxtOp:
			return s.opPostTxt(conn, msg)
		case protocol.PostTxtAllOp:
			return s.opPostTxtAll(conn, msg)
		case protocol.PostFileOp:
			return s.opPostFile(conn, msg)
		case protocol.GetFileOp:
			return s.opGetFile(conn, msg)
		case protocol.GetPrevMsgsOp:
			return s.opGetPrevMsgs(conn, msg)
		case protocol.UsrListOp:
			return s.opUsrList(conn)
		case protocol.UnregisterOp:
			return s.opUnregister(conn, msg)
		case protocol.DisconnectOp:
			return s.opDisconnect(conn, msg)
		}
	}

	_ = conn.SendHeader(protocol.Header{Op: protocol.OpFail})
	return fmt.Errorf("unknown op %d", msg.Hdr.Op)
}

func (s *Server) opRegister(conn *protocol.Conn, msg protocol.Message) error {
	switch err := s.reg.Register(msg.Hdr.Sender, conn.FD()); {
	case err == nil:
		s.stats.Add(1, 1, 0, 0, 0, 0, 0)
		slog.Info("user registered", "nick", msg.Hdr.Sender, "fd", conn.FD())
		return conn.SendReply(
			protocol.Header{Op: protocol.OpOK},
			protocol.Data{Buf: s.reg.OnlineList()})
	case errors.Is(err, registry.ErrNickTaken):
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickAlready})
	default:
		return err
	}
}

func (s *Server) opConnect(conn *protocol.Conn, msg protocol.Message) error {
	switch err := s.reg.Connect(msg.Hdr.Sender, conn.FD()); {
	case err == nil:
		s.stats.Add(0, 1, 0, 0, 0, 0, 0)
		slog.Info("user connected", "nick", msg.Hdr.Sender, "fd", conn.FD())
		return conn.SendReply(
			protocol.Header{Op: protocol.OpOK},
			protocol.Data{Buf: s.reg.OnlineList()})
	case errors.Is(err, registry.ErrUnknownNick):
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickUnknown})
	case errors.Is(err, registry.ErrAlreadyOnline):
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickAlready})
	default:
		return err
	}
}

func (s *Server) opPostTxt(conn *protocol.Conn, msg protocol.Message) error {
	if len(msg.Data.Buf) > s.cfg.MaxMsgSize {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpMsgTooLong})
	}

	// The delivered form lands in the recipient's history regardless
	// of their presence; a direct send to an online recipient is an
	// extra copy, not a replacement.
	out := msg
	out.Hdr.Op = protocol.TxtMessage

	if err := s.reg.PostHistory(msg.Data.Receiver, out); err != nil {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickUnknown})
	}
	s.stats.Add(0, 0, 0, 1, 0, 0, 0)

	if fd, online, err := s.reg.LookupFD(msg.Data.Receiver); err == nil && online {
		if rconn := s.conn(fd); rconn != nil && rconn.Send(out) == nil {
			s.stats.Add(0, 0, 1, -1, 0, 0, 0)
		}
		// A failed direct send keeps the offline accounting; the
		// message is already in the history.
	}
	return conn.SendHeader(protocol.Header{Op: protocol.OpOK})
}

func (s *Server) opPostTxtAll(conn *protocol.Conn, msg protocol.Message) error {
	if len(msg.Data.Buf) > s.cfg.MaxMsgSize {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpMsgTooLong})
	}

	out := msg
	out.Hdr.Op = protocol.TxtMessage

	n := s.reg.PostHistoryAll(msg.Hdr.Sender, out)
	s.stats.Add(0, 0, 0, int64(n), 0, 0, 0)

	// Broadcast deliveries bump delivered without reconciling the
	// stored count, so a delivered broadcast is counted in both
	// buckets. Kept as the counters have always behaved.
	for _, fd := range s.reg.OnlineFDs(msg.Hdr.Sender) {
		if rconn := s.conn(fd); rconn != nil && rconn.Send(out) == nil {
			s.stats.Add(0, 0, 1, 0, 0, 0, 0)
		}
	}
	return conn.SendHeader(protocol.Header{Op: protocol.OpOK})
}

func (s *Server) opPostFile(conn *protocol.Conn, msg protocol.Message) error {
	// The request frame carries the proposed filename; the bytes
	// arrive in a second data block on the same descriptor.
	fileData, err := protocol.ReadData(conn)
	if err != nil {
		return fmt.Errorf("read file bytes: %w", err)
	}

	// MaxFileSize is in KiB; the cap is byte-exact, so a file one byte
	// over the limit is refused.
	if len(fileData.Buf) > s.cfg.MaxFileSize*1024 {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpMsgTooLong})
	}

	name := payloadString(msg.Data.Buf)
	if err := s.files.Save(context.Background(), name, msg.Hdr.Sender, fileData.Buf); err != nil {
		return fmt.Errorf("store attachment: %w", err)
	}

	out := msg
	out.Hdr.Op = protocol.FileMessage

	if err := s.reg.PostHistory(msg.Data.Receiver, out); err != nil {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickUnknown})
	}
	s.stats.Add(0, 0, 0, 0, 0, 1, 0)

	if fd, online, err := s.reg.LookupFD(msg.Data.Receiver); err == nil && online {
		if rconn := s.conn(fd); rconn != nil && rconn.Send(out) == nil {
			s.stats.Add(0, 0, 0, 0, 1, -1, 0)
		}
	}
	return conn.SendHeader(protocol.Header{Op: protocol.OpOK})
}

func (s *Server) opGetFile(conn *protocol.Conn, msg protocol.Message) error {
	data, err := s.files.Read(payloadString(msg.Data.Buf))
	if err != nil {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		if !errors.Is(err, filestore.ErrNoSuchFile) {
			slog.Warn("attachment read failed", "err", err)
		}
		return conn.SendHeader(protocol.Header{Op: protocol.OpNoSuchFile})
	}

	s.stats.Add(0, 0, 0, 0, 1, -1, 0)
	return conn.SendReply(
		protocol.Header{Op: protocol.OpOK},
		protocol.Data{Buf: data})
}

func (s *Server) opGetPrevMsgs(conn *protocol.Conn, msg protocol.Message) error {
	msgs, err := s.reg.History(msg.Hdr.Sender)
	if err != nil {
		return conn.SendHeader(protocol.Header{Op: protocol.OpFail})
	}

	// The count frame and the history frames form one reply; hold the
	// connection lock across all of them so a concurrent direct
	// delivery cannot splice itself into the sequence.
	conn.Lock()
	defer conn.Unlock()

	var count [8]byte
	binary.LittleEndian.PutUint64(count[:], uint64(len(msgs)))
	first := protocol.Message{
		Hdr:  protocol.Header{Op: protocol.OpOK},
		Data: protocol.Data{Buf: count[:]},
	}
	if err := protocol.WriteMsg(conn, first); err != nil {
		return err
	}
	for _, m := range msgs {
		if err := protocol.WriteMsg(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) opUsrList(conn *protocol.Conn) error {
	return conn.SendReply(
		protocol.Header{Op: protocol.OpOK},
		protocol.Data{Buf: s.reg.OnlineList()})
}

func (s *Server) opUnregister(conn *protocol.Conn, msg protocol.Message) error {
	if err := s.reg.Unregister(msg.Hdr.Sender); err != nil {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickUnknown})
	}
	s.stats.Add(-1, -1, 0, 0, 0, 0, 0)
	slog.Info("user unregistered", "nick", msg.Hdr.Sender)
	return conn.SendHeader(protocol.Header{Op: protocol.OpOK})
}

func (s *Server) opDisconnect(conn *protocol.Conn, msg protocol.Message) error {
	if _, err := s.reg.Disconnect(msg.Hdr.Sender, conn.FD()); err != nil {
		s.stats.Add(0, 0, 0, 0, 0, 0, 1)
		return conn.SendHeader(protocol.Header{Op: protocol.OpNickUnknown})
	}
	s.stats.Add(0, -1, 0, 0, 0, 0, 0)
	slog.Info("user disconnected", "nick", msg.Hdr.Sender)
	return conn.SendHeader(protocol.Header{Op: protocol.OpOK})
}

// payloadString interprets a payload as a string, stopping at the
// first null byte so clients that send terminated strings and clients
// that do not are treated alike.
func payloadString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
