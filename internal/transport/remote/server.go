// Package remote implements the remote access gateway: a line protocol that
// lets trusted tools query the roster and proxy a few commands to the lobby
// server through the bot's session.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/chanserv/internal/core"
)

const (
	defaultIdleTimeout  = 30 * time.Second
	defaultQueryTimeout = 10 * time.Second
)

// Lobby is the part of the session engine the gateway drives.
type Lobby interface {
	SendLine(line string) error
	Connected() bool
}

// Verifier checks IDENTIFY keys and names who presented them.
type Verifier interface {
	Verify(key string) (string, error)
}

// Config tunes the listener.
type Config struct {
	Addr         string
	IdleTimeout  time.Duration
	QueryTimeout time.Duration
	// MaxSessions bounds concurrent connections; zero means unbounded.
	MaxSessions int
	// AcceptRate is accepted connections per second; zero disables throttling.
	AcceptRate  float64
	AcceptBurst int
}

// Server is the gateway listener and its correlation registry.
type Server struct {
	cfg     Config
	lobby   Lobby
	shared  *core.Shared
	keys    Verifier
	limiter *rate.Limiter
	log     zerolog.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[int]*session
	nextID   int

	wg sync.WaitGroup
}

// New builds a gateway. Call Listen and Serve, or Run.
func New(cfg Config, lobby Lobby, shared *core.Shared, keys Verifier, logger *zerolog.Logger) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "gateway").Logger()
	}
	s := &Server{
		cfg:      cfg,
		lobby:    lobby,
		shared:   shared,
		keys:     keys,
		log:      l,
		sessions: make(map[int]*session),
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return s
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run listens and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is cancelled. Open sessions are closed
// on cancel and Serve waits for them.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("gateway: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	defer s.wg.Wait()
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("gateway accept: %w", err)
		}

		sess, ok := s.register(conn)
		if !ok {
			s.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("session limit reached")
			conn.Write([]byte(replyFailed + "\n"))
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.unregister(sess)
			closeOnCancel := context.AfterFunc(ctx, func() { sess.conn.Close() })
			defer closeOnCancel()
			s.handle(ctx, sess)
		}()
	}
}

// register assigns the next correlation id.
func (s *Server) register(conn net.Conn) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		return nil, false
	}
	s.nextID++
	sess := &session{
		id:   s.nextID,
		uid:  uuid.New(),
		conn: conn,
	}
	s.sessions[sess.id] = sess
	return sess, true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.conn.Close()
}

// SessionCount returns the number of open connections.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Forward hands a numbered lobby reply to the session waiting on id.
// It never blocks; false means no query was outstanding on id.
func (s *Server) Forward(id int, line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil || sess.pending == nil {
		return false
	}
	select {
	case sess.pending <- line:
		sess.pending = nil
		return true
	default:
		return false
	}
}

// expect opens the reply slot for one query on sess.
func (s *Server) expect(sess *session) chan string {
	ch := make(chan string, 1)
	s.mu.Lock()
	sess.pending = ch
	s.mu.Unlock()
	return ch
}

// settle closes the reply slot so a late answer is dropped.
func (s *Server) settle(sess *session) {
	s.mu.Lock()
	sess.pending = nil
	s.mu.Unlock()
}
