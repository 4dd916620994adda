package antispam

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/core"
)

// System is the anti-spam engine consulted by the lobby session.
type System interface {
	ProcessUserMsg(channel, user, text string)
	ProcessClientStatusChange(client *core.Client)
	SetSpamSettingsForChannel(channel string, settings Settings)
}

// Monitor records per-channel settings and observed traffic. It does not
// score messages.
type Monitor struct {
	mu       sync.Mutex
	settings map[string]Settings
	messages map[string]int
	log      zerolog.Logger
}

// NewMonitor constructs a Monitor logging through logger.
func NewMonitor(logger *zerolog.Logger) *Monitor {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "antispam").Logger()
	}
	return &Monitor{
		settings: make(map[string]Settings),
		messages: make(map[string]int),
		log:      l,
	}
}

func (m *Monitor) ProcessUserMsg(channel, user, text string) {
	m.mu.Lock()
	m.messages[channel]++
	m.mu.Unlock()
	m.log.Trace().Str("channel", channel).Str("user", user).Int("len", len(text)).Msg("message observed")
}

func (m *Monitor) ProcessClientStatusChange(client *core.Client) {
	if client == nil {
		return
	}
	m.log.Trace().Str("user", client.Name).Int("status", client.Status).Msg("status observed")
}

func (m *Monitor) SetSpamSettingsForChannel(channel string, settings Settings) {
	m.mu.Lock()
	m.settings[channel] = settings
	m.mu.Unlock()
	m.log.Debug().Str("channel", channel).Str("settings", settings.String()).Msg("settings updated")
}

// SettingsFor returns the settings last applied to channel.
func (m *Monitor) SettingsFor(channel string) (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[channel]
	return s, ok
}

// Observed returns how many messages were seen on channel.
func (m *Monitor) Observed(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[channel]
}
