package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
)

func help(r *request) {
	// Always private, channels don't need the noise.
	user := r.issuer.Name
	names := Verbs()
	sort.Strings(names)
	r.p.msg.Private(user, "Hello, "+user+"!")
	r.p.msg.Private(user, "I am an automated channel service bot.")
	r.p.msg.Private(user, "Commands (prefix with "+string(Marker)+"): "+strings.Join(names, ", "))
	r.p.msg.Private(user, "If you want to go ahead and register a new channel, please contact one of the server moderators!")
}

func info(r *request) {
	if !r.argc(1, 1) {
		return
	}
	name, ok := r.channelName()
	if !ok {
		return
	}
	ch := r.st.Channel(name)
	if ch == nil {
		r.fail("Channel #" + name + " is not registered!")
		return
	}
	if ch.Static {
		r.reply("Channel #" + name + " is registered as a static channel, no further info available!")
		return
	}
	r.reply(describe(ch))
}

func describe(ch *core.Channel) string {
	var b strings.Builder
	b.WriteString("Channel #" + ch.Name + " info: Anti-spam protection is ")
	if ch.AntiSpam {
		b.WriteString("on")
	} else {
		b.WriteString("off")
	}
	b.WriteString(". Founder is <" + ch.Founder + ">, ")

	ops := ch.Operators
	switch len(ops) {
	case 0:
		b.WriteString("no operators are registered.")
	case 1:
		b.WriteString("1 registered operator is <" + ops[0] + ">.")
	default:
		b.WriteString(strconv.Itoa(len(ops)) + " registered operators are ")
		quoted := make([]string, len(ops))
		for i, op := range ops {
			quoted[i] = "<" + op + ">"
		}
		b.WriteString(strings.Join(quoted, ", ") + ".")
	}
	return b.String()
}

func register(r *request) {
	if !r.issuer.Moderator() {
		r.fail("Sorry, you'll have to contact one of the server moderators to register a channel for you!")
		return
	}
	if !r.argc(2, 2) {
		return
	}
	name, ok := r.channelName()
	if !ok {
		return
	}
	if err := core.ValidateChannelName(name); err != nil {
		r.fail("Error: Bad channel name (" + err.Error() + ")")
		return
	}
	if existing := r.st.Channel(name); existing != nil {
		if existing.Static {
			r.fail("Error: channel #" + name + " is a static channel (cannot register it)!")
		} else {
			r.fail("Error: channel #" + name + " is already registered!")
		}
		return
	}
	founder := r.inv.Args[1]
	if !r.username(founder) {
		return
	}

	ch := core.NewChannel(name)
	ch.Founder = founder
	ch.SpamSettings = antispam.DefaultSettings
	if err := r.st.AddChannel(ch); err != nil {
		r.fail("Error: channel #" + name + " is already registered!")
		return
	}
	r.line("JOIN " + ch.Name)
	r.reply("Channel #" + name + " successfully registered to " + founder)
}

func changeFounder(r *request) {
	if !r.argc(2, 2) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, founderOrModerator) {
		return
	}
	founder := r.inv.Args[1]
	if !r.username(founder) {
		return
	}
	ch.Founder = founder
	r.reply("You've successfully set founder of #" + ch.Name + " to <" + founder + ">")
	r.line("CHANNELMESSAGE " + ch.Name + " <" + founder + "> has just been set as this channel's founder")
}

func unregister(r *request) {
	if !r.argc(1, 1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, founderOrModerator) {
		return
	}
	if err := r.st.RemoveChannel(ch.Name); err != nil {
		r.fail("Channel #" + ch.Name + " is not registered!")
		return
	}
	r.line("CHANNELMESSAGE " + ch.Name + " This channel has just been unregistered from <" + r.p.msg.BotName() + "> by <" + r.issuer.Name + ">")
	r.reply("Channel #" + ch.Name + " successfully unregistered!")
	r.line("LEAVE " + ch.Name)
}

func addStatic(r *request) {
	if !r.allowed(nil, moderator) || !r.argc(1, 1) {
		return
	}
	name, ok := r.channelName()
	if !ok {
		return
	}
	if err := core.ValidateChannelName(name); err != nil {
		r.fail("Error: Bad channel name (" + err.Error() + ")")
		return
	}
	if existing := r.st.Channel(name); existing != nil {
		if existing.Static {
			r.fail("Error: channel #" + name + " is already static!")
		} else {
			r.fail("Error: channel #" + name + " is already registered! (unregister it first and then add it to static list)")
		}
		return
	}

	ch := core.NewChannel(name)
	ch.Static = true
	ch.SpamSettings = antispam.DefaultSettings
	if err := r.st.AddChannel(ch); err != nil {
		r.fail("Error: channel #" + name + " is already static!")
		return
	}
	r.line("JOIN " + ch.Name)
	r.reply("Channel #" + name + " successfully added to static list.")
}

func removeStatic(r *request) {
	if !r.argc(1, 1) {
		return
	}
	name, ok := r.channelName()
	if !ok {
		return
	}
	ch := r.st.Channel(name)
	if ch == nil || !ch.Static {
		r.fail("Channel #" + name + " is not in the static channel list!")
		return
	}
	if !r.allowed(ch, moderator) {
		return
	}
	if err := r.st.RemoveChannel(name); err != nil {
		r.fail("Channel #" + name + " is not in the static channel list!")
		return
	}
	r.reply("Channel #" + name + " successfully removed from static channel list!")
	r.line("LEAVE " + name)
}

func op(r *request) {
	if !r.argc(2, 2) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, founderOrModerator) {
		return
	}
	target := r.inv.Args[1]
	if ch.IsOperator(target) {
		r.fail("Error: User is already in this channel's operator list!")
		return
	}
	if !r.username(target) {
		return
	}
	if !ch.AddOperator(target) {
		r.fail("Error: Too many operators (" + strconv.Itoa(core.MaxOperators) + ") registered. This is part of a bot-side protection against flooding, if you think you really need more operators assigned, please contact bot maintainer.")
		return
	}
	r.line("CHANNELMESSAGE " + ch.Name + " <" + target + "> has just been added to this channel's operator list by <" + r.issuer.Name + ">")
}

func deop(r *request) {
	if !r.argc(2, 2) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, founderOrModerator) {
		return
	}
	target := r.inv.Args[1]
	if !ch.RemoveOperator(target) {
		r.fail("Error: User <" + target + "> is not in this channel's operator list!")
		return
	}
	r.line("CHANNELMESSAGE " + ch.Name + " <" + target + "> has just been removed from this channel's operator list by <" + r.issuer.Name + ">")
}

func spamProtection(r *request) {
	if !r.argc(1, 2) {
		return
	}
	ch, ok := r.existing()
	if !ok {
		return
	}
	if len(r.inv.Args) == 1 {
		state := "off"
		if ch.AntiSpam {
			state = "on (settings: " + ch.SpamSettings + ")"
		}
		r.reply("Anti-spam protection for channel #" + ch.Name + " is " + state)
		return
	}
	if !r.allowed(ch, founderOrModerator) {
		return
	}

	switch value := r.inv.Args[1]; strings.ToUpper(value) {
	case "ON":
		ch.AntiSpam = true
		if s, err := antispam.ParseSettings(ch.SpamSettings); err == nil {
			r.p.spam.SetSpamSettingsForChannel(ch.Name, s)
		}
		r.reply("Anti-spam protection has been enabled for #" + ch.Name)
		r.line("CHANNELMESSAGE " + ch.Name + " Anti-spam protection for channel #" + ch.Name + " has been enabled")
	case "OFF":
		ch.AntiSpam = false
		r.reply("Anti-spam protection has been disabled for #" + ch.Name)
		r.line("CHANNELMESSAGE " + ch.Name + " Anti-spam protection for channel #" + ch.Name + " has been disabled")
	default:
		r.fail("Error: Invalid parameter (\"" + value + "\"). Valid is \"on|off\"")
	}
}

func spamSettings(r *request) {
	if !r.argc(6, 6) {
		return
	}
	ch, ok := r.existing()
	if !ok || !r.allowed(ch, founderOrModerator) {
		return
	}
	s, err := antispam.ParseSettings(strings.Join(r.inv.Args[1:], " "))
	if err != nil {
		r.fail("Invalid 'settings' parameter!")
		return
	}
	ch.SpamSettings = s.String()
	r.p.spam.SetSpamSettingsForChannel(ch.Name, s)
	r.reply("Anti-spam settings successfully updated (" + ch.SpamSettings + ")")
}

func shutdown(r *request) {
	if !r.allowed(nil, moderator) {
		return
	}
	reason := "restarting ..."
	if len(r.inv.Args) > 0 {
		reason = strings.Join(r.inv.Args, " ")
	}
	for _, ch := range r.st.Channels() {
		if !ch.Static {
			r.line("SAYEX " + ch.Name + " is quitting. Reason: " + reason)
		}
	}
	if r.p.persist != nil {
		if err := r.p.persist.SaveChannels(r.st.Channels()); err != nil {
			r.p.log.Error().Err(err).Msg("failed to save registry before shutdown")
		}
	}
	r.p.log.Info().Str("user", r.issuer.Name).Str("reason", reason).Msg("shutdown requested")
	if r.p.Shutdown != nil {
		r.p.Shutdown(reason)
	}
}
