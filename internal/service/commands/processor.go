package commands

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/service/messenger"
)

// Marker prefixes chat text that should be treated as a command.
const Marker = '!'

// contextual verbs take the channel they were issued in as their first argument.
var contextual = map[string]bool{
	"INFO":           true,
	"CHANGEFOUNDER":  true,
	"OP":             true,
	"DEOP":           true,
	"SPAMPROTECTION": true,
	"SPAMSETTINGS":   true,
	"TOPIC":          true,
	"CHANMSG":        true,
	"LOCK":           true,
	"UNLOCK":         true,
	"KICK":           true,
	"MUTE":           true,
	"UNMUTE":         true,
	"MUTELIST":       true,
}

// Invocation is a command parsed once, independent of where it was issued.
type Invocation struct {
	Verb string
	// Origin is the channel the command was said in, nil for private messages.
	Origin *core.Channel
	Args   []string
}

// Parse splits text into an invocation. ok is false for blank input.
func Parse(text string, origin *core.Channel) (inv Invocation, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Invocation{}, false
	}
	inv = Invocation{
		Verb:   strings.ToUpper(fields[0]),
		Origin: origin,
		Args:   fields[1:],
	}
	if origin != nil && contextual[inv.Verb] {
		inv.Args = append([]string{"#" + origin.Name}, inv.Args...)
	}
	return inv, true
}

type verbFunc func(r *request)

var verbs map[string]verbFunc

func init() {
	verbs = map[string]verbFunc{
		"HELP":           help,
		"INFO":           info,
		"REGISTER":       register,
		"CHANGEFOUNDER":  changeFounder,
		"UNREGISTER":     unregister,
		"ADDSTATIC":      addStatic,
		"REMOVESTATIC":   removeStatic,
		"OP":             op,
		"DEOP":           deop,
		"SPAMPROTECTION": spamProtection,
		"SPAMSETTINGS":   spamSettings,
		"TOPIC":          topic,
		"CHANMSG":        chanMsg,
		"LOCK":           lock,
		"UNLOCK":         unlock,
		"KICK":           kick,
		"MUTE":           mute,
		"UNMUTE":         unmute,
		"MUTELIST":       muteList,
		"SHUTDOWN":       shutdown,
	}
}

// Verbs returns the recognised command verbs.
func Verbs() []string {
	out := make([]string, 0, len(verbs))
	for v := range verbs {
		out = append(out, v)
	}
	return out
}

// Processor validates and executes user commands against the shared state.
type Processor struct {
	msg     *messenger.Messenger
	spam    antispam.System
	persist core.Persister
	log     zerolog.Logger

	// Shutdown is called once SHUTDOWN has announced itself and saved the registry.
	Shutdown func(reason string)
}

// New builds a processor. persist may be nil; a nil spam falls back to a Monitor.
func New(msg *messenger.Messenger, spam antispam.System, persist core.Persister, logger *zerolog.Logger) *Processor {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "commands").Logger()
	}
	if spam == nil {
		spam = antispam.NewMonitor(logger)
	}
	return &Processor{msg: msg, spam: spam, persist: persist, log: l}
}

// Process runs one command. It must be called with the state lock held.
// issuer is nil when the sender is not in the roster; such commands are ignored.
func (p *Processor) Process(st *core.State, text string, issuer *core.Client, origin *core.Channel) {
	if issuer == nil || issuer.Name == p.msg.BotName() {
		return
	}
	inv, ok := Parse(text, origin)
	if !ok {
		return
	}
	fn, ok := verbs[inv.Verb]
	if !ok {
		p.log.Debug().Str("verb", inv.Verb).Str("user", issuer.Name).Msg("unknown command")
		return
	}
	p.log.Debug().Str("verb", inv.Verb).Str("user", issuer.Name).Strs("args", inv.Args).Msg("command")
	fn(&request{p: p, st: st, issuer: issuer, inv: inv})
}

// permission is one of the access predicates a verb can require.
type permission int

const (
	anyone permission = iota
	moderator
	founderOrModerator
	operatorOrAbove
)

type request struct {
	p      *Processor
	st     *core.State
	issuer *core.Client
	inv    Invocation
}

func (r *request) reply(text string) {
	r.p.msg.Send(r.issuer, r.inv.Origin, text)
}

func (r *request) line(text string) {
	r.p.msg.Line(text)
}

func (r *request) fail(text string) {
	r.p.log.Debug().Str("verb", r.inv.Verb).Str("user", r.issuer.Name).Str("reason", text).Msg("command rejected")
	r.reply(text)
}

// argc checks the argument count; max < 0 means unbounded.
func (r *request) argc(min, max int) bool {
	n := len(r.inv.Args)
	if n < min || (max >= 0 && n > max) {
		r.fail("Error: Invalid params!")
		return false
	}
	return true
}

// channelName strips the '#' sigil from the first argument.
func (r *request) channelName() (string, bool) {
	arg := r.inv.Args[0]
	if !strings.HasPrefix(arg, "#") {
		r.fail("Error: Bad channel name (forgot #?)")
		return "", false
	}
	return arg[1:], true
}

// registered resolves the first argument to a registered, non-static channel.
func (r *request) registered() (*core.Channel, bool) {
	name, ok := r.channelName()
	if !ok {
		return nil, false
	}
	ch := r.st.Channel(name)
	if ch == nil || ch.Static {
		r.fail("Channel #" + name + " is not registered!")
		return nil, false
	}
	return ch, true
}

// existing resolves the first argument to any channel in the registry.
func (r *request) existing() (*core.Channel, bool) {
	name, ok := r.channelName()
	if !ok {
		return nil, false
	}
	ch := r.st.Channel(name)
	if ch == nil {
		r.fail("Channel #" + name + " does not exist!")
		return nil, false
	}
	return ch, true
}

func (r *request) allowed(ch *core.Channel, perm permission) bool {
	name := r.issuer.Name
	ok := false
	switch perm {
	case anyone:
		ok = true
	case moderator:
		ok = r.issuer.Moderator()
	case founderOrModerator:
		ok = r.issuer.Moderator() || (ch != nil && ch.IsFounder(name))
	case operatorOrAbove:
		ok = r.issuer.Moderator() || (ch != nil && (ch.IsFounder(name) || ch.IsOperator(name)))
	}
	if !ok {
		r.fail("Insufficient access to execute " + r.inv.Verb + " command!")
	}
	return ok
}

func (r *request) username(name string) bool {
	if len(name) > core.MaxUsernameLength {
		r.fail("Error: Too long username!")
		return false
	}
	return true
}
