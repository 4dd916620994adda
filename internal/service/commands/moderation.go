package commands

import (
	"strconv"
	"strings"

	"github.com/vovakirdan/chanserv/internal/core"
)

func topic(r *request) {
	if !r.argc(1, -1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	text := strings.TrimSpace(strings.Join(r.inv.Args[1:], " "))
	if text == "" {
		text = "*"
	}
	r.line("CHANNELTOPIC " + ch.Name + " " + text)
}

func chanMsg(r *request) {
	if !r.argc(2, -1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	r.line("CHANNELMESSAGE " + ch.Name + " issued by <" + r.issuer.Name + ">: " + strings.Join(r.inv.Args[1:], " "))
}

func lock(r *request) {
	if !r.argc(2, 2) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	key := r.inv.Args[1]
	if !core.ValidKey(key) {
		r.fail("Error: key contains some invalid characters!")
		return
	}
	r.line("SETCHANNELKEY " + ch.Name + " " + key)
	if key == "*" {
		ch.Key = ""
	} else {
		ch.Key = key
	}
}

func unlock(r *request) {
	if !r.argc(1, 1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	r.line("SETCHANNELKEY " + ch.Name + " *")
	ch.Key = ""
}

func kick(r *request) {
	if !r.argc(2, -1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	target := r.inv.Args[1]
	if !ch.HasMember(target) {
		r.fail("Error: <" + target + "> not found in #" + ch.Name + "!")
		return
	}
	if target == r.p.msg.BotName() {
		r.fail("You are not allowed to issue this command!")
		return
	}
	line := "FORCELEAVECHANNEL " + ch.Name + " " + target
	if len(r.inv.Args) > 2 {
		line += " " + strings.Join(r.inv.Args[2:], " ")
	}
	r.line(line)
}

func mute(r *request) {
	if !r.argc(2, 3) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	target := r.inv.Args[1]
	if !r.st.Online(target) {
		r.fail("Error: Invalid username - <" + target + "> does not exist or is not online. Command dropped.")
		return
	}
	if target == r.p.msg.BotName() {
		r.fail("You are not allowed to issue this command!")
		return
	}
	duration := 0
	if len(r.inv.Args) == 3 {
		d, err := strconv.Atoi(r.inv.Args[2])
		if err != nil {
			r.fail("Error: <duration> argument should be an integer!")
			return
		}
		duration = d
	}
	r.line("MUTE " + ch.Name + " " + target + " " + strconv.Itoa(duration))
}

func unmute(r *request) {
	if !r.argc(2, 2) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	r.line("UNMUTE " + ch.Name + " " + r.inv.Args[1])
}

func muteList(r *request) {
	if !r.argc(1, 1) {
		return
	}
	ch, ok := r.registered()
	if !ok || !r.allowed(ch, operatorOrAbove) {
		return
	}
	replyTo := ""
	if r.inv.Origin != nil {
		replyTo = r.inv.Origin.Name
	}
	r.st.Mutes.Add(ch.Name, r.issuer.Name, replyTo)
	r.line("MUTELIST " + ch.Name)
}
