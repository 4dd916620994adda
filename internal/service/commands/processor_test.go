package commands

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/service/messenger"
)

const botName = "ChanServ"

type recordSender struct {
	lines []string
}

func (r *recordSender) SendLine(line string) error {
	r.lines = append(r.lines, line)
	return nil
}

type countingPersister struct {
	saves int
	last  []*core.Channel
}

func (c *countingPersister) SaveChannels(chans []*core.Channel) error {
	c.saves++
	c.last = chans
	return nil
}

type harness struct {
	st      *core.State
	out     *recordSender
	spam    *antispam.Monitor
	persist *countingPersister
	proc    *Processor
	reason  string
	stopped bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		st:      core.NewState(nil),
		out:     &recordSender{},
		spam:    antispam.NewMonitor(nil),
		persist: &countingPersister{},
	}
	msg := messenger.New(h.out, nil, botName, nil)
	h.proc = New(msg, h.spam, h.persist, nil)
	h.proc.Shutdown = func(reason string) {
		h.stopped = true
		h.reason = reason
	}

	h.st.AddClient(botName)
	h.st.AddClient("mod").Status = 1 << 5
	h.st.AddClient("alice")
	h.st.AddClient("bob")
	h.st.AddClient("mallory")

	ch := core.NewChannel("main")
	ch.Founder = "alice"
	ch.AddOperator("bob")
	ch.SpamSettings = antispam.DefaultSettings
	ch.AddMember("alice")
	ch.AddMember("bob")
	ch.AddMember("mallory")
	ch.AddMember(botName)
	if err := h.st.AddChannel(ch); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	static := core.NewChannel("lobby")
	static.Static = true
	if err := h.st.AddChannel(static); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	return h
}

// say runs text as a private command from user, or in channel when given.
func (h *harness) say(user, channel, text string) []string {
	h.out.lines = nil
	var origin *core.Channel
	if channel != "" {
		origin = h.st.Channel(channel)
	}
	h.proc.Process(h.st, text, h.st.Client(user), origin)
	return h.out.lines
}

func expectLines(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lines:\n got %q\nwant %q", got, want)
	}
}

func TestParse(t *testing.T) {
	origin := core.NewChannel("main")
	tests := []struct {
		name   string
		text   string
		origin *core.Channel
		verb   string
		args   []string
	}{
		{"private", "op #main bob", nil, "OP", []string{"#main", "bob"}},
		{"in channel", "Op bob", origin, "OP", []string{"#main", "bob"}},
		{"register not contextual", "register #dev alice", origin, "REGISTER", []string{"#dev", "alice"}},
		{"extra spaces", "  kick   bob  flooding ", origin, "KICK", []string{"#main", "bob", "flooding"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := Parse(tt.text, tt.origin)
			if !ok {
				t.Fatalf("Parse returned !ok")
			}
			if inv.Verb != tt.verb || !reflect.DeepEqual(inv.Args, tt.args) {
				t.Fatalf("got %s %v, want %s %v", inv.Verb, inv.Args, tt.verb, tt.args)
			}
		})
	}
	if _, ok := Parse("   ", nil); ok {
		t.Fatalf("blank text should not parse")
	}
}

func TestOpBounds(t *testing.T) {
	h := newHarness(t)

	lines := h.say("alice", "", "OP #main bob")
	expectLines(t, lines, "SAYPRIVATE alice Error: User is already in this channel's operator list!")

	lines = h.say("alice", "", "DEOP #main carol")
	expectLines(t, lines, "SAYPRIVATE alice Error: User <carol> is not in this channel's operator list!")

	ch := h.st.Channel("main")
	for i := len(ch.Operators); i < core.MaxOperators; i++ {
		h.say("alice", "", fmt.Sprintf("OP #main user%d", i))
	}
	if len(ch.Operators) != core.MaxOperators {
		t.Fatalf("expected %d operators, got %d", core.MaxOperators, len(ch.Operators))
	}
	lines = h.say("alice", "", "OP #main onemore")
	if len(lines) != 1 || !strings.Contains(lines[0], "Too many operators (100)") {
		t.Fatalf("expected cap error, got %q", lines)
	}
	if len(ch.Operators) != core.MaxOperators {
		t.Fatalf("operator list exceeded cap: %d", len(ch.Operators))
	}

	lines = h.say("alice", "", "DEOP #main bob")
	expectLines(t, lines, "CHANNELMESSAGE main <bob> has just been removed from this channel's operator list by <alice>")
	if ch.IsOperator("bob") {
		t.Fatalf("bob still an operator")
	}
}

func TestOpRejectsLongName(t *testing.T) {
	h := newHarness(t)
	lines := h.say("alice", "main", "OP "+strings.Repeat("x", 31))
	expectLines(t, lines, "SAY main alice: Error: Too long username!")
}

func TestPermissionGating(t *testing.T) {
	tests := []string{
		"TOPIC new topic",
		"LOCK secret",
		"KICK bob",
		"MUTE bob 5",
		"UNLOCK",
		"MUTELIST",
		"OP mallory",
	}
	for _, cmd := range tests {
		t.Run(cmd, func(t *testing.T) {
			h := newHarness(t)
			before := *h.st.Channel("main")
			before.Operators = append([]string(nil), before.Operators...)

			lines := h.say("mallory", "main", cmd)
			verb := strings.Fields(cmd)[0]
			expectLines(t, lines, "SAY main mallory: Insufficient access to execute "+verb+" command!")

			after := h.st.Channel("main")
			if after.Topic != before.Topic || after.Key != before.Key || !reflect.DeepEqual(after.Operators, before.Operators) {
				t.Fatalf("channel state changed after denied %s", verb)
			}
			if h.st.Mutes.Len() != 0 {
				t.Fatalf("mute request queued after denied command")
			}
		})
	}
}

func TestOperatorActions(t *testing.T) {
	h := newHarness(t)

	expectLines(t, h.say("bob", "main", "TOPIC hello there"), "CHANNELTOPIC main hello there")
	expectLines(t, h.say("bob", "main", "TOPIC"), "CHANNELTOPIC main *")
	expectLines(t, h.say("bob", "main", "LOCK s3cret"), "SETCHANNELKEY main s3cret")
	if h.st.Channel("main").Key != "s3cret" {
		t.Fatalf("key not stored")
	}
	expectLines(t, h.say("bob", "main", "LOCK bad-key"), "SAY main bob: Error: key contains some invalid characters!")
	expectLines(t, h.say("bob", "main", "LOCK *"), "SETCHANNELKEY main *")
	if h.st.Channel("main").Locked() {
		t.Fatalf("LOCK * should clear the key")
	}
	expectLines(t, h.say("bob", "main", "CHANMSG be nice"), "CHANNELMESSAGE main issued by <bob>: be nice")
	expectLines(t, h.say("bob", "main", "KICK mallory spamming a lot"), "FORCELEAVECHANNEL main mallory spamming a lot")
	expectLines(t, h.say("bob", "main", "MUTE mallory"), "MUTE main mallory 0")
	expectLines(t, h.say("bob", "main", "MUTE mallory 30"), "MUTE main mallory 30")
	expectLines(t, h.say("bob", "main", "UNMUTE mallory"), "UNMUTE main mallory")
}

func TestKickAndMuteTargets(t *testing.T) {
	h := newHarness(t)

	expectLines(t, h.say("alice", "", "KICK #main "+botName), "SAYPRIVATE alice You are not allowed to issue this command!")
	expectLines(t, h.say("alice", "", "KICK #main ghost"), "SAYPRIVATE alice Error: <ghost> not found in #main!")
	expectLines(t, h.say("alice", "", "MUTE #main "+botName), "SAYPRIVATE alice You are not allowed to issue this command!")
	expectLines(t, h.say("alice", "", "MUTE #main ghost"), "SAYPRIVATE alice Error: Invalid username - <ghost> does not exist or is not online. Command dropped.")
	expectLines(t, h.say("alice", "", "MUTE #main bob soon"), "SAYPRIVATE alice Error: <duration> argument should be an integer!")
	expectLines(t, h.say("alice", "", "MUTE #main bob 1 2"), "SAYPRIVATE alice Error: Invalid params!")
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		cmd  string
		want string
	}{
		{"OP main bob", "SAYPRIVATE alice Error: Bad channel name (forgot #?)"},
		{"OP #nope bob", "SAYPRIVATE alice Channel #nope is not registered!"},
		{"OP #lobby bob", "SAYPRIVATE alice Channel #lobby is not registered!"},
		{"OP #main", "SAYPRIVATE alice Error: Invalid params!"},
		{"SPAMPROTECTION #nope", "SAYPRIVATE alice Channel #nope does not exist!"},
		{"SPAMPROTECTION #main maybe", "SAYPRIVATE alice Error: Invalid parameter (\"maybe\"). Valid is \"on|off\""},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			expectLines(t, h.say("alice", "", tt.cmd), tt.want)
		})
	}
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	h := newHarness(t)
	before := names(h.st.Channels())

	joins := h.say("mod", "", "REGISTER #dev carol")
	expectLines(t, joins, "JOIN dev", "SAYPRIVATE mod Channel #dev successfully registered to carol")
	if ch := h.st.Channel("dev"); ch == nil || ch.Founder != "carol" || ch.SpamSettings != antispam.DefaultSettings {
		t.Fatalf("dev not registered correctly: %+v", ch)
	}

	leaves := h.say("mod", "", "UNREGISTER #dev")
	expectLines(t, leaves,
		"CHANNELMESSAGE dev This channel has just been unregistered from <ChanServ> by <mod>",
		"SAYPRIVATE mod Channel #dev successfully unregistered!",
		"LEAVE dev",
	)
	if after := names(h.st.Channels()); !reflect.DeepEqual(before, after) {
		t.Fatalf("registry not restored: %v vs %v", before, after)
	}
}

func TestRegisterRules(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		user string
		cmd  string
		want string
	}{
		{"alice", "REGISTER #dev alice", "SAYPRIVATE alice Sorry, you'll have to contact one of the server moderators to register a channel for you!"},
		{"mod", "REGISTER #main alice", "SAYPRIVATE mod Error: channel #main is already registered!"},
		{"mod", "REGISTER #lobby alice", "SAYPRIVATE mod Error: channel #lobby is a static channel (cannot register it)!"},
		{"mod", "REGISTER #bad-name alice", "SAYPRIVATE mod Error: Bad channel name (name contains invalid characters)"},
		{"mod", "REGISTER #dev " + strings.Repeat("y", 31), "SAYPRIVATE mod Error: Too long username!"},
		{"mod", "ADDSTATIC #main", "SAYPRIVATE mod Error: channel #main is already registered! (unregister it first and then add it to static list)"},
		{"alice", "ADDSTATIC #x", "SAYPRIVATE alice Insufficient access to execute ADDSTATIC command!"},
		{"mod", "REMOVESTATIC #main", "SAYPRIVATE mod Channel #main is not in the static channel list!"},
		{"alice", "REMOVESTATIC #lobby", "SAYPRIVATE alice Insufficient access to execute REMOVESTATIC command!"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			expectLines(t, h.say(tt.user, "", tt.cmd), tt.want)
		})
	}
	if len(h.st.Channels()) != 2 {
		t.Fatalf("rejected commands changed the registry")
	}
}

func TestStaticLifecycle(t *testing.T) {
	h := newHarness(t)
	expectLines(t, h.say("mod", "", "ADDSTATIC #help"), "JOIN help", "SAYPRIVATE mod Channel #help successfully added to static list.")
	if ch := h.st.Channel("help"); ch == nil || !ch.Static {
		t.Fatalf("help not static")
	}
	expectLines(t, h.say("mod", "", "REMOVESTATIC #help"), "SAYPRIVATE mod Channel #help successfully removed from static channel list!", "LEAVE help")
}

func TestInfoPhrasing(t *testing.T) {
	h := newHarness(t)
	ch := h.st.Channel("main")

	expectLines(t, h.say("mallory", "main", "INFO"),
		"SAY main mallory: Channel #main info: Anti-spam protection is off. Founder is <alice>, 1 registered operator is <bob>.")

	ch.Operators = nil
	expectLines(t, h.say("mallory", "", "INFO #main"),
		"SAYPRIVATE mallory Channel #main info: Anti-spam protection is off. Founder is <alice>, no operators are registered.")

	ch.Operators = []string{"bob", "carol", "dave"}
	ch.AntiSpam = true
	expectLines(t, h.say("mallory", "", "INFO #main"),
		"SAYPRIVATE mallory Channel #main info: Anti-spam protection is on. Founder is <alice>, 3 registered operators are <bob>, <carol>, <dave>.")

	expectLines(t, h.say("mallory", "", "INFO #lobby"),
		"SAYPRIVATE mallory Channel #lobby is registered as a static channel, no further info available!")
}

func TestSpamCommands(t *testing.T) {
	h := newHarness(t)

	expectLines(t, h.say("alice", "main", "SPAMPROTECTION"), "SAY main alice: Anti-spam protection for channel #main is off")
	h.say("alice", "main", "SPAMPROTECTION on")
	if !h.st.Channel("main").AntiSpam {
		t.Fatalf("anti-spam not enabled")
	}

	lines := h.say("alice", "main", "SPAMSETTINGS 5 200 x 2 2")
	expectLines(t, lines, "SAY main alice: Invalid 'settings' parameter!")
	if h.st.Channel("main").SpamSettings != antispam.DefaultSettings {
		t.Fatalf("bad settings mutated the channel")
	}

	lines = h.say("alice", "main", "SPAMSETTINGS 3 100 0.5 1 1")
	expectLines(t, lines, "SAY main alice: Anti-spam settings successfully updated (3 100 0.5 1 1)")
	if s, ok := h.spam.SettingsFor("main"); !ok || s.String() != "3 100 0.5 1 1" {
		t.Fatalf("anti-spam engine not updated: %v", s)
	}
	expectLines(t, h.say("alice", "main", "SPAMPROTECTION"), "SAY main alice: Anti-spam protection for channel #main is on (settings: 3 100 0.5 1 1)")
}

func TestMuteListQueuesRequest(t *testing.T) {
	h := newHarness(t)
	expectLines(t, h.say("bob", "main", "MUTELIST"), "MUTELIST main")
	if h.st.Mutes.Len() != 1 {
		t.Fatalf("expected 1 pending request, got %d", h.st.Mutes.Len())
	}
	got := h.st.Mutes.Drain("main", h.st.Online)
	if len(got) != 1 || got[0].Requester != "bob" || got[0].ReplyTo != "main" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestChangeFounder(t *testing.T) {
	h := newHarness(t)
	expectLines(t, h.say("alice", "", "CHANGEFOUNDER #main carol"),
		"SAYPRIVATE alice You've successfully set founder of #main to <carol>",
		"CHANNELMESSAGE main <carol> has just been set as this channel's founder")
	expectLines(t, h.say("alice", "", "CHANGEFOUNDER #main alice"),
		"SAYPRIVATE alice Insufficient access to execute CHANGEFOUNDER command!")
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)

	expectLines(t, h.say("alice", "", "SHUTDOWN"), "SAYPRIVATE alice Insufficient access to execute SHUTDOWN command!")
	if h.stopped {
		t.Fatalf("non-moderator stopped the bot")
	}

	lines := h.say("mod", "", "SHUTDOWN maintenance window")
	expectLines(t, lines, "SAYEX main is quitting. Reason: maintenance window")
	if !h.stopped || h.reason != "maintenance window" {
		t.Fatalf("shutdown hook not called: %v %q", h.stopped, h.reason)
	}
	if h.persist.saves != 1 || len(h.persist.last) != 2 {
		t.Fatalf("registry not saved before shutdown")
	}
}

func TestIgnoresUnknownIssuersAndSelf(t *testing.T) {
	h := newHarness(t)
	if lines := h.say("ghost", "", "HELP"); len(lines) != 0 {
		t.Fatalf("offline issuer got a reply: %v", lines)
	}
	if lines := h.say(botName, "main", "TOPIC x"); len(lines) != 0 {
		t.Fatalf("bot answered itself: %v", lines)
	}
	if lines := h.say("alice", "", "FROBNICATE"); len(lines) != 0 {
		t.Fatalf("unknown verb produced output: %v", lines)
	}
}

func TestHelpIsPrivate(t *testing.T) {
	h := newHarness(t)
	lines := h.say("mallory", "main", "help")
	if len(lines) != 4 {
		t.Fatalf("expected 4 help lines, got %d", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "SAYPRIVATE mallory ") {
			t.Fatalf("help leaked into channel: %q", l)
		}
	}
}

func names(chans []*core.Channel) []string {
	out := make([]string, len(chans))
	for i, ch := range chans {
		out[i] = ch.Name
	}
	return out
}
