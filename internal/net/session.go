package net

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"
)

// SessionOptions carries the per-connection limits from [network].
type SessionOptions struct {
	MaxLineBytes   int
	LinesPerSecond int // 0 = unlimited
	Big5           bool
	AuthTokenHash  string // empty disables AUTH
	ReadTimeout    time.Duration
}

// Session represents a single feed connection. Its read goroutine parses
// lines and pushes them onto the shared feed channel; it never touches the
// bus, which belongs to the game loop.
type Session struct {
	ID   uint64
	IP   string
	conn net.Conn
	opts SessionOptions
	feed chan<- Inbound

	decoder *encoding.Decoder
	authed  bool

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	// Per-second line rate limiter (readLoop goroutine only, no lock needed)
	lineCount   int
	lineResetAt int64

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, feed chan<- Inbound, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:      id,
		IP:      conn.RemoteAddr().String(),
		conn:    conn,
		opts:    opts,
		feed:    feed,
		authed:  opts.AuthTokenHash == "",
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		log:     log.With(zap.Uint64("session", id)),
	}
	if opts.Big5 {
		s.decoder = traditionalchinese.Big5.NewDecoder()
	}
	return s
}

// Start launches the read goroutine.
func (s *Session) Start() {
	go s.readLoop()
}

// Close shuts the connection down. Safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the read goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer s.Close()

	sc := bufio.NewScanner(s.conn)
	sc.Buffer(make([]byte, 0, 4096), s.opts.MaxLineBytes)

	for {
		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil && !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.overRate() {
			s.log.Warn("命令速率超限，斷開連線", zap.Int("lps", s.lineCount))
			s.reply("ERR rate limit")
			return
		}

		line, err := s.decode(sc.Bytes())
		if err != nil {
			s.reply("ERR encoding")
			continue
		}

		if !s.authed {
			if !s.authenticate(line) {
				s.log.Warn("驗證失敗，斷開連線", zap.String("ip", s.IP))
				s.reply("ERR auth")
				return
			}
			s.reply("OK")
			continue
		}

		tag, payload, err := ParseLine(line)
		if errors.Is(err, errEmptyLine) {
			continue
		}
		if err != nil {
			s.reply("ERR " + err.Error())
			continue
		}

		// Block until the feed has space or the session closes; dropping
		// lines would reorder a client's notifications.
		select {
		case s.feed <- Inbound{Session: s.ID, Tag: tag, Payload: payload}:
		case <-s.closeCh:
			return
		}
		s.reply("OK")
	}
}

func (s *Session) overRate() bool {
	if s.opts.LinesPerSecond <= 0 {
		return false
	}
	now := time.Now().Unix()
	if now != s.lineResetAt {
		s.lineCount = 0
		s.lineResetAt = now
	}
	s.lineCount++
	return s.lineCount > s.opts.LinesPerSecond
}

func (s *Session) decode(raw []byte) (string, error) {
	if s.decoder == nil {
		return string(raw), nil
	}
	b, err := s.decoder.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode big5: %w", err)
	}
	return string(b), nil
}

func (s *Session) authenticate(line string) bool {
	token, ok := parseAuth(line)
	if !ok {
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.opts.AuthTokenHash), []byte(token)); err != nil {
		return false
	}
	s.authed = true
	return true
}

func (s *Session) reply(msg string) {
	if s.closed.Load() {
		return
	}
	if _, err := s.conn.Write([]byte(msg + "\n")); err != nil {
		s.log.Debug("寫入錯誤", zap.Error(err))
		s.Close()
	}
}
