package dataplane

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/fwdctl/internal/dataplane/wire"
	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/rs/zerolog/log"
)

// Server exposes an hw.Connection backend over the wire codec.
type Server struct {
	backend hw.Connection
	limits  wire.Limits

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
}

func NewServer(backend hw.Connection) *Server {
	return &Server{
		backend: backend,
		limits:  wire.DefaultLimits(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts sessions on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAll()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.track(conn)
		go s.handleConn(ctx, conn)
	}
}

// Serve is shorthand for NewServer(backend).Serve(ctx, ln).
func Serve(ctx context.Context, ln net.Listener, backend hw.Connection) error {
	return NewServer(backend).Serve(ctx, ln)
}

// ActiveSessions reports the number of connected clients.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrack(conn)
	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	log.Info().Str("remote", remote).Int64("active", active).Msg("dataplane.Server session opened")
	defer func() {
		remaining := s.active.Add(-1)
		log.Info().Str("remote", remote).Int64("active", remaining).Msg("dataplane.Server session closed")
	}()

	reader := bufio.NewReader(conn)
	for {
		fr, err := wire.ReadFrame(reader, s.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("remote", remote).Err(err).Msg("dataplane.Server read failed")
			}
			return
		}
		reply := s.dispatch(ctx, fr)
		if err := wire.WriteFrame(conn, reply, s.limits); err != nil {
			log.Warn().Str("remote", remote).Err(err).Msg("dataplane.Server write failed")
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, fr wire.Frame) wire.Frame {
	id := fr.ID()
	switch fr.Type() {
	case wire.TypePing:
		return wire.Pong(id)
	case wire.TypeRequest:
	default:
		return wire.Error(id, wire.ErrUnexpectedType)
	}
	msg, err := wire.DecodeRequest(fr)
	if err != nil {
		return wire.Error(id, err)
	}
	if msg.Kind == hw.KindDump {
		records, err := s.backend.Dump(ctx, msg)
		if err != nil {
			return wire.Error(id, err)
		}
		return wire.DumpReply(id, records)
	}
	reply, err := s.backend.Call(ctx, msg)
	if err != nil {
		return wire.Error(id, err)
	}
	return wire.Reply(id, reply)
}

func (s *Server) track(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAll() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
