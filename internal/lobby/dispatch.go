package lobby

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/service/commands"
)

const adminBroadcastPrefix = "[broadcast to all admins]: "

var (
	numbered = regexp.MustCompile(`^#(\d+)\s(.*)$`)
	renamed  = regexp.MustCompile(`^User <([^>]+)> has just renamed (?:\S+ )?account to <([^>]+)>`)
)

type handler struct {
	// min is the least number of tokens, verb included.
	min int
	fn  func(e *Engine, st *core.State, f []string)
}

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"TASSERVER":      {1, (*Engine).onServerHello},
		"ACCEPTED":       {1, (*Engine).onAccepted},
		"DENIED":         {1, (*Engine).onDenied},
		"AGREEMENT":      {1, (*Engine).onAgreement},
		"ADDUSER":        {2, (*Engine).onAddUser},
		"REMOVEUSER":     {2, (*Engine).onRemoveUser},
		"CLIENTSTATUS":   {3, (*Engine).onClientStatus},
		"JOIN":           {2, (*Engine).onJoin},
		"CLIENTS":        {2, (*Engine).onClients},
		"JOINED":         {3, (*Engine).onJoined},
		"LEFT":           {3, (*Engine).onLeft},
		"JOINFAILED":     {2, (*Engine).onJoinFailed},
		"CHANNELTOPIC":   {3, (*Engine).onChannelTopic},
		"SAID":           {3, (*Engine).onSaid},
		"SAIDEX":         {3, (*Engine).onSaidEx},
		"SAIDPRIVATE":    {2, (*Engine).onSaidPrivate},
		"SERVERMSG":      {1, (*Engine).onServerMsg},
		"SERVERMSGBOX":   {1, (*Engine).onServerMsgBox},
		"CHANNELMESSAGE": {2, (*Engine).onChannelMessage},
		"BROADCAST":      {1, (*Engine).onBroadcast},
		"MUTELISTBEGIN":  {2, (*Engine).onMuteListBegin},
		"MUTELIST":       {1, (*Engine).onMuteList},
		"MUTELISTEND":    {1, (*Engine).onMuteListEnd},
	}
}

// Handle processes one line received from the lobby server.
func (e *Engine) Handle(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	e.log.Trace().Str("line", line).Msg("recv")

	if line[0] == '#' {
		e.forwardNumbered(line)
		return
	}

	f := strings.Split(line, " ")
	verb := strings.ToUpper(f[0])
	h, ok := handlers[verb]
	if !ok {
		e.log.Trace().Str("verb", verb).Msg("unhandled verb")
		return
	}
	if len(f) < h.min {
		e.log.Trace().Str("line", line).Msg("malformed event dropped")
		return
	}
	f[0] = verb
	e.shared.Do(func(st *core.State) {
		h.fn(e, st, f)
	})
}

func (e *Engine) forwardNumbered(line string) {
	m := numbered.FindStringSubmatch(line)
	if m == nil {
		e.log.Trace().Str("line", line).Msg("malformed numbered reply")
		return
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		e.log.Trace().Err(err).Str("line", line).Msg("malformed numbered reply")
		return
	}
	fwd := e.forwarder()
	if fwd == nil || !fwd.Forward(id, m[2]) {
		e.log.Trace().Int("id", id).Msg("numbered reply has no waiting session")
	}
}

// sentence joins tokens from index i on.
func sentence(f []string, i int) string {
	if i >= len(f) {
		return ""
	}
	return strings.Join(f[i:], " ")
}

func (e *Engine) onServerHello(_ *core.State, _ []string) {
	e.msg.Line("LOGIN " + e.cfg.Username + " " + e.cfg.Password + " 0 * ChanServ " + Version)
}

func (e *Engine) onAccepted(st *core.State, _ []string) {
	e.log.Info().Msg("login accepted")
	for _, ch := range st.Channels() {
		e.msg.Line("JOIN " + ch.Name)
	}
}

func (e *Engine) onDenied(_ *core.State, f []string) {
	e.log.Error().Str("reason", sentence(f, 1)).Msg("login denied")
	e.Stop(ErrLoginDenied)
}

func (e *Engine) onAgreement(_ *core.State, _ []string) {
	e.log.Error().Msg("server is requesting agreement confirmation, cancelling")
	e.Stop(ErrAgreementRequired)
}

func (e *Engine) onAddUser(st *core.State, f []string) {
	st.AddClient(f[1])
}

func (e *Engine) onRemoveUser(st *core.State, f []string) {
	st.RemoveClient(f[1])
}

func (e *Engine) onClientStatus(st *core.State, f []string) {
	c := st.Client(f[1])
	if c == nil {
		return
	}
	status, err := strconv.Atoi(f[2])
	if err != nil {
		e.log.Trace().Str("status", f[2]).Msg("bad client status")
		return
	}
	c.Status = status
	e.spam.ProcessClientStatusChange(c)
}

func (e *Engine) onJoin(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		// unregistered while the JOIN was in flight
		return
	}
	e.log.Info().Str("channel", ch.Name).Msg("joined")
	ch.Joined = true
	ch.ClearMembers()
	if ch.Static {
		return
	}
	if ch.Key != "" {
		e.msg.Line("SETCHANNELKEY " + ch.Name + " " + ch.Key)
	}
	topic := ch.Topic
	if topic == "" {
		topic = "*"
	}
	e.msg.Line("CHANNELTOPIC " + ch.Name + " " + topic)
}

func (e *Engine) onClients(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	for _, name := range f[2:] {
		if name != "" {
			ch.AddMember(name)
		}
	}
}

func (e *Engine) onJoined(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	ch.AddMember(f[2])
	e.msg.Record(ch.LogName(), "* "+f[2]+" has joined #"+ch.Name)
}

func (e *Engine) onLeft(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	ch.RemoveMember(f[2])
	out := "* " + f[2] + " has left #" + ch.Name
	if len(f) > 3 {
		out += " (" + sentence(f, 3) + ")"
	}
	e.msg.Record(ch.LogName(), out)
}

func (e *Engine) onJoinFailed(st *core.State, f []string) {
	e.log.Warn().Str("channel", f[1]).Str("reason", sentence(f, 2)).Msg("failed to join")
	if st.Channel(f[1]) != nil {
		return
	}
	ch := core.NewChannel(f[1])
	ch.SpamSettings = antispam.DefaultSettings
	if err := st.AddChannel(ch); err != nil {
		e.log.Debug().Err(err).Str("channel", f[1]).Msg("placeholder not added")
	}
}

// onChannelTopic handles "CHANNELTOPIC chan author changedtime topic...".
func (e *Engine) onChannelTopic(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	ch.Topic = sentence(f, 4)
	e.msg.Record(ch.LogName(), "* Channel topic is '"+ch.Topic+"' set by "+f[2])
}

func (e *Engine) onSaid(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	user, text := f[2], sentence(f, 3)
	if ch.AntiSpam {
		e.spam.ProcessUserMsg(ch.Name, user, text)
	}
	if user == e.cfg.Username {
		// already recorded when sent
		return
	}
	e.msg.Record(ch.LogName(), "<"+user+"> "+text)
	if strings.HasPrefix(text, string(commands.Marker)) {
		e.proc.Process(st, text[1:], st.Client(user), ch)
	}
}

func (e *Engine) onSaidEx(st *core.State, f []string) {
	ch := st.Channel(f[1])
	if ch == nil {
		return
	}
	user, text := f[2], sentence(f, 3)
	if ch.AntiSpam {
		e.spam.ProcessUserMsg(ch.Name, user, text)
	}
	e.msg.Record(ch.LogName(), "* "+user+" "+text)
}

func (e *Engine) onSaidPrivate(st *core.State, f []string) {
	user, text := f[1], sentence(f, 2)
	e.msg.Record(user+".log", "<"+user+"> "+text)
	if strings.HasPrefix(text, string(commands.Marker)) {
		e.proc.Process(st, text[1:], st.Client(user), nil)
	}
}

func (e *Engine) onServerMsg(st *core.State, f []string) {
	text := sentence(f, 1)
	e.log.Info().Str("text", text).Msg("message from server")
	if rest, ok := strings.CutPrefix(text, adminBroadcastPrefix); ok {
		e.scanRename(st, rest)
	}
}

// scanRename migrates founder and operator entries when an account is renamed.
// The notice wording is not guaranteed by the server; a miss only means the
// roles stay under the old name.
func (e *Engine) scanRename(st *core.State, text string) {
	m := renamed.FindStringSubmatch(text)
	if m == nil {
		return
	}
	oldName, newName := m[1], m[2]
	for _, c := range st.RenameUser(oldName, newName) {
		role := "operator"
		if c.Founder {
			role = "founder"
		}
		e.log.Info().Str("channel", c.Channel).Str("role", role).Str("from", oldName).Str("to", newName).Msg("role renamed")
	}
}

func (e *Engine) onServerMsgBox(_ *core.State, f []string) {
	e.log.Info().Str("text", sentence(f, 1)).Msg("message box from server")
}

func (e *Engine) onChannelMessage(st *core.State, f []string) {
	if ch := st.Channel(f[1]); ch != nil {
		e.msg.Record(ch.LogName(), "* Channel message: "+sentence(f, 2))
	}
}

func (e *Engine) onBroadcast(_ *core.State, f []string) {
	e.log.Info().Str("text", sentence(f, 1)).Msg("broadcast from server")
}

func (e *Engine) onMuteListBegin(_ *core.State, f []string) {
	e.muteChannel = f[1]
	e.muteLines = e.muteLines[:0]
}

func (e *Engine) onMuteList(_ *core.State, f []string) {
	e.muteLines = append(e.muteLines, sentence(f, 1))
}

func (e *Engine) onMuteListEnd(st *core.State, _ []string) {
	for _, req := range st.Mutes.Drain(e.muteChannel, st.Online) {
		target := st.Client(req.Requester)
		var replyTo *core.Channel
		if req.ReplyTo != "" {
			replyTo = st.Channel(req.ReplyTo)
		}
		if len(e.muteLines) == 0 {
			e.msg.Send(target, replyTo, "Mute list for #"+req.Channel+" is empty!")
			continue
		}
		for _, entry := range e.muteLines {
			e.msg.Send(target, replyTo, entry)
		}
	}
	e.muteChannel = ""
	e.muteLines = e.muteLines[:0]
}
