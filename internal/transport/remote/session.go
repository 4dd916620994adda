package remote

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/core"
)

const (
	replyProceed  = "PROCEED"
	replyFailed   = "FAILED"
	replyLoginOK  = "LOGINOK"
	replyLoginBad = "LOGINBAD"
	replyOK       = "OK"
	replyNotOK    = "NOTOK"
)

// allowedQueries are the lobby verbs QUERYSERVER may forward with the bot's credentials.
var allowedQueries = map[string]bool{
	"GETREGISTRATIONDATE":    true,
	"GETINGAMETIME":          true,
	"GETLASTIP":              true,
	"GETLASTLOGINTIME":       true,
	"RELOADUPDATEPROPERTIES": true,
	"GETLOBBYVERSION":        true,
	"UPDATEMOTD":             true,
	"RETRIEVELATESTBANLIST":  true,
	"GETUSERID":              true,
}

var (
	errQueryTimeout = errors.New("lobby reply timed out")
	errClose        = errors.New("close session")
)

type session struct {
	id   int
	uid  uuid.UUID
	conn net.Conn
	who  string
	log  zerolog.Logger

	// pending receives the reply to the outstanding query; nil when idle.
	// Guarded by Server.mu.
	pending chan string
}

func (sess *session) send(line string) error {
	_, err := sess.conn.Write([]byte(line + "\n"))
	return err
}

type commandFunc func(s *Server, ctx context.Context, sess *session, args []string) error

var commandTable map[string]commandFunc

func init() {
	commandTable = map[string]commandFunc{
		"TESTLOGIN":      (*Server).testLogin,
		"ISONLINE":       (*Server).isOnline,
		"GETACCESS":      (*Server).getAccess,
		"GENERATEUSERID": (*Server).generateUserID,
		"QUERYSERVER":    (*Server).queryServer,
	}
}

// handle runs one connection: IDENTIFY first, then one command per round trip
// until the client leaves or stays idle too long.
func (s *Server) handle(ctx context.Context, sess *session) {
	sess.log = s.log.With().Str("session", sess.uid.String()).Int("id", sess.id).Logger()
	sess.log.Debug().Str("remote", sess.conn.RemoteAddr().String()).Msg("session opened")
	defer sess.log.Debug().Msg("session closed")

	reader := bufio.NewReader(sess.conn)
	authenticated := false
	for {
		sess.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				sess.log.Debug().Msg("idle timeout")
			}
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		verb := strings.ToUpper(fields[0])
		args := fields[1:]

		if !authenticated {
			if !s.identify(sess, verb, args) {
				sess.send(replyFailed)
				return
			}
			authenticated = true
			if sess.send(replyProceed) != nil {
				return
			}
			continue
		}

		fn, ok := commandTable[verb]
		if !ok {
			if sess.send(replyNotOK) != nil {
				return
			}
			continue
		}
		if err := fn(s, ctx, sess, args); err != nil {
			if !errors.Is(err, errClose) {
				sess.log.Debug().Err(err).Str("verb", verb).Msg("command failed")
			}
			return
		}
	}
}

func (s *Server) identify(sess *session, verb string, args []string) bool {
	if verb != "IDENTIFY" || len(args) != 1 {
		sess.log.Debug().Str("verb", verb).Msg("expected IDENTIFY")
		return false
	}
	who, err := s.keys.Verify(args[0])
	if err != nil {
		sess.log.Warn().Str("remote", sess.conn.RemoteAddr().String()).Msg("identify failed")
		return false
	}
	sess.who = who
	sess.log = sess.log.With().Str("who", who).Logger()
	sess.log.Info().Msg("remote client identified")
	return true
}

// query sends cmd to the lobby wrapped with the session's id and waits for the reply.
// Callers close the session after a failed query, so an id never has a stale
// answer in flight when its next query is sent.
func (s *Server) query(ctx context.Context, sess *session, cmd string) (string, error) {
	replies := s.expect(sess)
	defer s.settle(sess)

	if err := s.lobby.SendLine("#" + strconv.Itoa(sess.id) + " " + cmd); err != nil {
		return "", err
	}

	timer := time.NewTimer(s.cfg.QueryTimeout)
	defer timer.Stop()
	select {
	case reply := <-replies:
		return reply, nil
	case <-timer.C:
		return "", errQueryTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) testLogin(ctx context.Context, sess *session, args []string) error {
	if len(args) != 2 {
		return sess.send(replyNotOK)
	}
	reply, err := s.query(ctx, sess, "TESTLOGIN "+args[0]+" "+args[1])
	if err != nil {
		sess.log.Debug().Err(err).Msg("login test got no answer")
		sess.send(replyLoginBad)
		return errClose
	}
	if strings.HasPrefix(reply, "TESTLOGINACCEPT") {
		return sess.send(replyLoginOK)
	}
	return sess.send(replyLoginBad)
}

func (s *Server) isOnline(_ context.Context, sess *session, args []string) error {
	if len(args) != 1 {
		return sess.send(replyNotOK)
	}
	online := false
	s.shared.Do(func(st *core.State) {
		online = st.Online(args[0])
	})
	if online {
		return sess.send(replyOK)
	}
	return sess.send(replyNotOK)
}

func (s *Server) getAccess(_ context.Context, sess *session, args []string) error {
	if len(args) != 1 {
		return sess.send(replyNotOK)
	}
	var access core.Access
	s.shared.Do(func(st *core.State) {
		access = st.AccessOf(args[0])
	})
	return sess.send(strconv.Itoa(int(access)))
}

// generateUserID asks the lobby to make the user report its id. Nothing is sent back.
func (s *Server) generateUserID(_ context.Context, sess *session, args []string) error {
	if len(args) != 1 {
		return sess.send(replyNotOK)
	}
	if err := s.lobby.SendLine("FORGEREVERSEMSG " + args[0] + " ACQUIREUSERID"); err != nil {
		sess.log.Debug().Err(err).Msg("generate user id not sent")
	}
	return nil
}

func (s *Server) queryServer(ctx context.Context, sess *session, args []string) error {
	if len(args) == 0 || !allowedQueries[strings.ToUpper(args[0])] {
		return sess.send(replyNotOK)
	}
	if !s.lobby.Connected() {
		sess.log.Debug().Msg("query while lobby is down")
		return errClose
	}
	reply, err := s.query(ctx, sess, strings.Join(args, " "))
	if err != nil {
		sess.log.Warn().Err(err).Str("query", args[0]).Msg("query failed")
		return errClose
	}
	return sess.send(reply)
}
