package remote

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chanserv/internal/auth"
	"github.com/vovakirdan/chanserv/internal/core"
)

const testKey = "gateway-secret"

// fakeLobby answers numbered lines through the gateway's Forward, the way the
// engine does for envelopes coming back from the lobby server.
type fakeLobby struct {
	mu        sync.Mutex
	lines     []string
	connected bool
	gw        *Server
	answer    func(cmd string) (string, bool)
}

func (f *fakeLobby) SendLine(line string) error {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	answer, gw := f.answer, f.gw
	f.mu.Unlock()

	if !strings.HasPrefix(line, "#") || answer == nil {
		return nil
	}
	idText, cmd, _ := strings.Cut(line[1:], " ")
	id, err := strconv.Atoi(idText)
	if err != nil {
		return err
	}
	if reply, ok := answer(cmd); ok {
		gw.Forward(id, reply)
	}
	return nil
}

func (f *fakeLobby) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLobby) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func newTestGateway(t *testing.T, cfg Config, lobby *fakeLobby) *Server {
	t.Helper()

	shared := core.NewShared(core.NewState(time.Now))
	shared.Do(func(st *core.State) {
		st.SetAdmins([]string{"root"})
		st.AddClient("alice")
		mod := st.AddClient("mod")
		mod.Status = 32
	})

	cfg.Addr = "127.0.0.1:0"
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 200 * time.Millisecond
	}
	gw := New(cfg, lobby, shared, auth.NewKeyVerifier([]string{testKey}, ""), nil)
	lobby.mu.Lock()
	lobby.gw = gw
	lobby.mu.Unlock()

	if err := gw.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("Serve did not stop")
		}
	})
	return gw
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, gw *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", gw.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) roundTrip(t *testing.T, line string) string {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	return c.read(t)
}

func (c *client) read(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimRight(reply, "\r\n")
}

// expectClosed fails unless the gateway hangs up within a second.
func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	if line, err := c.r.ReadString('\n'); err == nil {
		t.Fatalf("expected close, got %q", line)
	} else {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Fatalf("connection still open")
		}
	}
}

func identified(t *testing.T, gw *Server) *client {
	t.Helper()
	c := dial(t, gw)
	if got := c.roundTrip(t, "IDENTIFY "+testKey); got != replyProceed {
		t.Fatalf("IDENTIFY: got %q", got)
	}
	return c
}

func TestIdentify(t *testing.T) {
	gw := newTestGateway(t, Config{}, &fakeLobby{connected: true})

	tests := []struct {
		name string
		line string
	}{
		{name: "wrong key", line: "IDENTIFY nope"},
		{name: "missing key", line: "IDENTIFY"},
		{name: "command before identify", line: "ISONLINE alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, gw)
			if got := c.roundTrip(t, tt.line); got != replyFailed {
				t.Fatalf("got %q, want %s", got, replyFailed)
			}
			c.expectClosed(t)
		})
	}

	c := identified(t, gw)
	if got := c.roundTrip(t, "identify "+testKey); got != replyNotOK {
		t.Fatalf("second IDENTIFY: got %q", got)
	}
}

func TestRosterQueries(t *testing.T) {
	gw := newTestGateway(t, Config{}, &fakeLobby{connected: true})
	c := identified(t, gw)

	tests := []struct {
		line string
		want string
	}{
		{"ISONLINE alice", replyOK},
		{"ISONLINE ghost", replyNotOK},
		{"GETACCESS ghost", "0"},
		{"GETACCESS alice", "1"},
		{"GETACCESS mod", "2"},
		{"GETACCESS root", "0"},
		{"ISONLINE", replyNotOK},
		{"FROBNICATE x", replyNotOK},
	}
	for _, tt := range tests {
		if got := c.roundTrip(t, tt.line); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestQueryServerCorrelation(t *testing.T) {
	lobby := &fakeLobby{
		connected: true,
		answer: func(cmd string) (string, bool) {
			if strings.HasPrefix(cmd, "GETLASTIP") {
				return "alice's last IP was 10.0.0.1", true
			}
			return "", false
		},
	}
	gw := newTestGateway(t, Config{}, lobby)

	first := identified(t, gw)
	second := identified(t, gw)
	if got := second.roundTrip(t, "QUERYSERVER GETLASTIP alice"); got != "alice's last IP was 10.0.0.1" {
		t.Fatalf("relay: got %q", got)
	}
	if got := first.roundTrip(t, "QUERYSERVER KICKUSER alice"); got != replyNotOK {
		t.Fatalf("disallowed verb: got %q", got)
	}

	sent := lobby.sent()
	if len(sent) != 1 || sent[0] != "#2 GETLASTIP alice" {
		t.Fatalf("lobby lines: %v", sent)
	}
	if gw.Forward(99, "stray") {
		t.Fatalf("Forward to unknown id delivered")
	}
}

func TestQueryServerTimeoutCloses(t *testing.T) {
	gw := newTestGateway(t, Config{QueryTimeout: 50 * time.Millisecond}, &fakeLobby{connected: true})
	c := identified(t, gw)
	if _, err := c.conn.Write([]byte("QUERYSERVER GETLOBBYVERSION\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.expectClosed(t)
}

func TestTestLogin(t *testing.T) {
	lobby := &fakeLobby{
		connected: true,
		answer: func(cmd string) (string, bool) {
			if cmd == "TESTLOGIN alice secret" {
				return "TESTLOGINACCEPT alice 42", true
			}
			if strings.HasPrefix(cmd, "TESTLOGIN bob") {
				return "TESTLOGINDENY", true
			}
			return "", false
		},
	}
	gw := newTestGateway(t, Config{QueryTimeout: 50 * time.Millisecond}, lobby)
	c := identified(t, gw)

	tests := []struct {
		line string
		want string
	}{
		{"TESTLOGIN alice secret", replyLoginOK},
		{"TESTLOGIN bob secret", replyLoginBad},
		{"TESTLOGIN alice", replyNotOK},
	}
	for _, tt := range tests {
		if got := c.roundTrip(t, tt.line); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.line, got, tt.want)
		}
	}

	// no answer: LOGINBAD, then the session is dropped
	if got := c.roundTrip(t, "TESTLOGIN carol secret"); got != replyLoginBad {
		t.Fatalf("unanswered login test: got %q", got)
	}
	c.expectClosed(t)
}

func TestLateReplyIsDropped(t *testing.T) {
	lobby := &fakeLobby{connected: true}
	gw := newTestGateway(t, Config{QueryTimeout: 50 * time.Millisecond}, lobby)
	c := identified(t, gw)

	// nothing outstanding yet
	if gw.Forward(1, "TESTLOGINACCEPT alice 42") {
		t.Fatalf("reply delivered with no query outstanding")
	}
	if got := c.roundTrip(t, "TESTLOGIN alice secret"); got != replyLoginBad {
		t.Fatalf("got %q", got)
	}
	c.expectClosed(t)
	if gw.Forward(1, "TESTLOGINACCEPT alice 42") {
		t.Fatalf("late reply delivered after the query timed out")
	}

	// a fresh session gets a fresh id and only its own answer
	lobby.mu.Lock()
	lobby.answer = func(cmd string) (string, bool) {
		return "TESTLOGINACCEPT alice 42", true
	}
	lobby.mu.Unlock()
	next := identified(t, gw)
	if got := next.roundTrip(t, "TESTLOGIN alice secret"); got != replyLoginOK {
		t.Fatalf("got %q", got)
	}
	sent := lobby.sent()
	if len(sent) != 2 || !strings.HasPrefix(sent[0], "#1 ") || !strings.HasPrefix(sent[1], "#2 ") {
		t.Fatalf("lobby lines: %v", sent)
	}
}

func TestSessionCount(t *testing.T) {
	gw := newTestGateway(t, Config{}, &fakeLobby{connected: true})
	c := identified(t, gw)
	identified(t, gw)
	if n := gw.SessionCount(); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}
	c.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for gw.SessionCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("closed session still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerateUserIDHasNoReply(t *testing.T) {
	lobby := &fakeLobby{connected: true}
	gw := newTestGateway(t, Config{}, lobby)
	c := identified(t, gw)

	if _, err := c.conn.Write([]byte("GENERATEUSERID alice\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	// the next reply must belong to the next command
	if got := c.roundTrip(t, "ISONLINE alice"); got != replyOK {
		t.Fatalf("got %q", got)
	}
	sent := lobby.sent()
	if len(sent) != 1 || sent[0] != "FORGEREVERSEMSG alice ACQUIREUSERID" {
		t.Fatalf("lobby lines: %v", sent)
	}
}

func TestIdleTimeout(t *testing.T) {
	gw := newTestGateway(t, Config{IdleTimeout: 50 * time.Millisecond}, &fakeLobby{connected: true})
	c := identified(t, gw)
	c.expectClosed(t)
}

func TestSessionLimit(t *testing.T) {
	gw := newTestGateway(t, Config{MaxSessions: 1}, &fakeLobby{connected: true})
	identified(t, gw)

	extra := dial(t, gw)
	if got := extra.read(t); got != replyFailed {
		t.Fatalf("over limit: got %q", got)
	}
	extra.expectClosed(t)
}
