package messenger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/store"
)

const transcriptTimeout = 2 * time.Second

// LineSender writes one protocol line to the lobby server.
type LineSender interface {
	SendLine(line string) error
}

// Messenger formats and routes user-facing text and records transcripts.
type Messenger struct {
	out         LineSender
	transcripts store.TranscriptStore
	bot         string
	log         zerolog.Logger
}

// New builds a messenger. transcripts may be nil to disable recording.
func New(out LineSender, transcripts store.TranscriptStore, botName string, logger *zerolog.Logger) *Messenger {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "messenger").Logger()
	}
	return &Messenger{out: out, transcripts: transcripts, bot: botName, log: l}
}

// BotName returns the account name the bot is logged in as.
func (m *Messenger) BotName() string {
	return m.bot
}

// Send delivers text according to which of client and channel are given:
// channel only broadcasts, both prefixes the client's name in the channel,
// client only sends privately.
func (m *Messenger) Send(client *core.Client, channel *core.Channel, text string) {
	switch {
	case client == nil && channel == nil:
		m.log.Warn().Str("text", text).Msg("message with neither client nor channel dropped")
	case client == nil:
		m.Line("SAY " + channel.Name + " " + text)
		m.Record(channel.LogName(), "<"+m.bot+"> "+text)
	case channel != nil:
		msg := client.Name + ": " + text
		m.Line("SAY " + channel.Name + " " + msg)
		m.Record(channel.LogName(), "<"+m.bot+"> "+msg)
	default:
		m.Private(client.Name, text)
	}
}

// Private sends a private message to user and records it in the user's transcript.
func (m *Messenger) Private(user, text string) {
	m.Line("SAYPRIVATE " + user + " " + text)
	m.Record(user+".log", "<"+m.bot+"> "+text)
}

// Line forwards a raw protocol line. Failures are logged, not returned;
// the session engine reconnects on its own.
func (m *Messenger) Line(line string) {
	if err := m.out.SendLine(line); err != nil {
		m.log.Debug().Err(err).Str("line", line).Msg("send failed")
	}
}

// Record appends a transcript line.
func (m *Messenger) Record(log, line string) {
	if m.transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), transcriptTimeout)
	defer cancel()
	if err := m.transcripts.AppendTranscript(ctx, log, line); err != nil {
		m.log.Warn().Err(err).Str("log", log).Msg("failed to record transcript")
	}
}
