package lobby

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/service/commands"
	"github.com/vovakirdan/chanserv/internal/service/messenger"
	"github.com/vovakirdan/chanserv/internal/store"
)

// Version is reported to the lobby server at login.
const Version = "1.0"

const (
	defaultReconnectDelay = 10 * time.Second
	defaultKeepAlive      = 15 * time.Second
	firstKeepAlive        = time.Second
	dialTimeout           = 15 * time.Second
)

// Config describes the upstream server and the bot account.
type Config struct {
	Address           string
	Port              int
	Username          string
	Password          string
	ReconnectDelay    time.Duration
	KeepAliveInterval time.Duration
}

// Forwarder receives replies to commands injected through the gateway.
type Forwarder interface {
	Forward(id int, line string) bool
}

// Engine owns the session with the lobby server.
type Engine struct {
	cfg     Config
	shared  *core.Shared
	msg     *messenger.Messenger
	proc    *commands.Processor
	spam    antispam.System
	persist core.Persister
	log     zerolog.Logger

	writeMu sync.Mutex
	conn    net.Conn
	w       io.Writer

	connected atomic.Bool

	fwdMu sync.RWMutex
	fwd   Forwarder

	termMu   sync.Mutex
	terminal error
	// stopped is closed by the first Stop.
	stopped chan struct{}

	// Mute list being streamed; touched only by the dispatch path.
	muteChannel string
	muteLines   []string

	firstTick time.Duration
}

// New builds an engine. transcripts and persist may be nil.
func New(cfg Config, shared *core.Shared, transcripts store.TranscriptStore, spam antispam.System, persist core.Persister, logger *zerolog.Logger) *Engine {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAlive
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "lobby").Logger()
	}
	if spam == nil {
		spam = antispam.NewMonitor(logger)
	}

	e := &Engine{
		cfg:       cfg,
		shared:    shared,
		spam:      spam,
		persist:   persist,
		log:       l,
		firstTick: firstKeepAlive,
		stopped:   make(chan struct{}),
	}
	e.msg = messenger.New(e, transcripts, cfg.Username, logger)
	e.proc = commands.New(e.msg, spam, persist, logger)
	e.proc.Shutdown = func(string) { e.Stop(ErrShutdown) }
	return e
}

// SetForwarder installs the receiver of numbered replies.
func (e *Engine) SetForwarder(f Forwarder) {
	e.fwdMu.Lock()
	e.fwd = f
	e.fwdMu.Unlock()
}

func (e *Engine) forwarder() Forwarder {
	e.fwdMu.RLock()
	defer e.fwdMu.RUnlock()
	return e.fwd
}

// Connected reports whether a session is currently open.
func (e *Engine) Connected() bool {
	return e.connected.Load()
}

// Username is the bot's lobby account.
func (e *Engine) Username() string {
	return e.cfg.Username
}

// SendLine writes one line to the lobby server. Safe for concurrent use.
func (e *Engine) SendLine(line string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.w == nil {
		return ErrNotConnected
	}
	e.log.Debug().Str("line", redact(line)).Msg("send")
	if _, err := io.WriteString(e.w, line+"\n"); err != nil {
		if e.conn != nil {
			e.conn.Close()
		}
		return fmt.Errorf("write lobby: %w", err)
	}
	return nil
}

// redact hides the password in LOGIN lines.
func redact(line string) string {
	if !strings.HasPrefix(line, "LOGIN ") {
		return line
	}
	f := strings.Split(line, " ")
	if len(f) > 2 {
		f[2] = "***"
	}
	return strings.Join(f, " ")
}

// Stop ends the session with a terminal error; Run returns it instead of reconnecting.
// It takes effect whether or not a session is open. A nil err stops with ErrShutdown.
func (e *Engine) Stop(err error) {
	if err == nil {
		err = ErrShutdown
	}
	e.termMu.Lock()
	if e.terminal == nil {
		e.terminal = err
		close(e.stopped)
	}
	e.termMu.Unlock()

	e.writeMu.Lock()
	if e.conn != nil {
		e.conn.Close()
	}
	e.writeMu.Unlock()
}

func (e *Engine) terminalErr() error {
	e.termMu.Lock()
	defer e.termMu.Unlock()
	return e.terminal
}

// Connect dials the lobby server and resets per-session state.
func (e *Engine) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(e.cfg.Address, strconv.Itoa(e.cfg.Port))
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stopped:
			cancel()
		case <-dialCtx.Done():
		}
	}()

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if terr := e.terminalErr(); terr != nil {
			return terr
		}
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	e.shared.Do(func(st *core.State) {
		st.ResetSession()
	})
	e.muteChannel = ""
	e.muteLines = nil

	e.writeMu.Lock()
	e.conn = conn
	e.w = conn
	e.writeMu.Unlock()

	// a Stop that raced the dial saw no conn to close
	if err := e.terminalErr(); err != nil {
		e.writeMu.Lock()
		conn.Close()
		e.conn = nil
		e.w = nil
		e.writeMu.Unlock()
		return err
	}
	e.connected.Store(true)

	e.log.Info().Str("addr", addr).Msg("connected to lobby server")
	return nil
}

// Run keeps a session open until ctx is cancelled or the session ends terminally.
// Lost connections are retried after the reconnect delay, forever.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.terminalErr(); err != nil {
			return err
		}
		if err := e.Connect(ctx); err != nil {
			if e.terminalErr() == nil {
				e.log.Warn().Err(err).Msg("connect failed")
			}
		} else {
			e.serve(ctx)
		}

		if err := e.terminalErr(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		e.log.Info().Dur("delay", e.cfg.ReconnectDelay).Msg("reconnecting")
		timer := time.NewTimer(e.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-e.stopped:
			timer.Stop()
			return e.terminalErr()
		case <-timer.C:
		}
	}
}

// serve runs the read loop of one session.
func (e *Engine) serve(ctx context.Context) {
	e.writeMu.Lock()
	conn := e.conn
	e.writeMu.Unlock()

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.keepAlive(sessCtx)
	}()
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && e.terminalErr() == nil {
			e.Handle(line)
		}
		if err != nil {
			if err != io.EOF && e.terminalErr() == nil && ctx.Err() == nil {
				e.log.Warn().Err(err).Msg("lobby read failed")
			}
			break
		}
	}

	cancel()
	wg.Wait()

	e.connected.Store(false)
	e.writeMu.Lock()
	e.conn = nil
	e.w = nil
	e.writeMu.Unlock()
	e.log.Info().Msg("disconnected from lobby server")
}

// keepAlive pings the server and saves the registry, first after one second
// and then on every interval.
func (e *Engine) keepAlive(ctx context.Context) {
	timer := time.NewTimer(e.firstTick)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick()
			timer.Reset(e.cfg.KeepAliveInterval)
		}
	}
}

func (e *Engine) tick() {
	e.shared.Do(func(st *core.State) {
		if err := e.SendLine("PING"); err != nil {
			e.log.Debug().Err(err).Msg("keep-alive ping failed")
		}
		if n := st.Mutes.Prune(st.Online); n > 0 {
			e.log.Debug().Int("dropped", n).Msg("pruned mute list requests")
		}
		e.save(st)
	})
}

// Save persists the registry now.
func (e *Engine) Save() {
	e.shared.Do(e.save)
}

func (e *Engine) save(st *core.State) {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveChannels(st.Channels()); err != nil {
		e.log.Error().Err(err).Msg("failed to save channel registry")
	}
}
