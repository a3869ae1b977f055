package net

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/l1jgo/cmdbus/internal/config"
	"go.uber.org/zap"
)

// Server accepts feed connections. Every session writes into one shared
// channel that the game loop drains.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	feed     chan Inbound
	opts     SessionOptions
	log      *zap.Logger
	closeCh  chan struct{}

	mu       sync.Mutex
	sessions map[uint64]*Session
}

func NewServer(cfg config.NetworkConfig, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return nil, err
	}
	return newServer(ln, cfg, log), nil
}

func newServer(ln net.Listener, cfg config.NetworkConfig, log *zap.Logger) *Server {
	return &Server{
		listener: ln,
		feed:     make(chan Inbound, cfg.InQueueSize),
		opts: SessionOptions{
			MaxLineBytes:   cfg.MaxLineBytes,
			LinesPerSecond: cfg.LinesPerSecond,
			Big5:           cfg.Encoding == "big5",
			AuthTokenHash:  cfg.AuthTokenHash,
			ReadTimeout:    cfg.ReadTimeout,
		},
		log:      log,
		closeCh:  make(chan struct{}),
		sessions: make(map[uint64]*Session),
	}
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.feed, s.opts, s.log)
		s.track(sess)
		sess.Start()

		s.log.Info(fmt.Sprintf("來源連線  session=%d  ip=%s", id, sess.IP))
	}
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	go func() {
		<-sess.Done()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		s.log.Info(fmt.Sprintf("來源斷線  session=%d", sess.ID))
	}()
}

// Feed returns the channel of parsed inbound notifications.
func (s *Server) Feed() <-chan Inbound {
	return s.feed
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting connections and closes every open session.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()

	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		sess.Close()
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
