package config

import (
	"time"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/core"
)

// Config holds bot configuration values.
type Config struct {
	LogLevel        string            `mapstructure:"log_level" yaml:"log_level"`
	Lobby           LobbyConfig       `mapstructure:"lobby" yaml:"lobby"`
	Gateway         GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Status          StatusConfig      `mapstructure:"status" yaml:"status"`
	Transcripts     TranscriptsConfig `mapstructure:"transcripts" yaml:"transcripts"`
	Admins          []string          `mapstructure:"admins" yaml:"admins"`
	Channels        []ChannelConfig   `mapstructure:"channels" yaml:"channels"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LobbyConfig is the upstream lobby server and the bot's account on it.
type LobbyConfig struct {
	Address           string        `mapstructure:"address" yaml:"address"`
	Port              int           `mapstructure:"port" yaml:"port"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
}

// GatewayConfig is the remote access listener.
type GatewayConfig struct {
	Port         int           `mapstructure:"port" yaml:"port"`
	Keys         []string      `mapstructure:"keys" yaml:"keys"`
	TokenSecret  string        `mapstructure:"token_secret" yaml:"token_secret"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	MaxSessions  int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	AcceptRate   float64       `mapstructure:"accept_rate" yaml:"accept_rate"`
	AcceptBurst  int           `mapstructure:"accept_burst" yaml:"accept_burst"`
}

// StatusConfig is the read-only HTTP status API. An empty Addr disables it.
type StatusConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	// RequestsPerMinute caps API requests; zero disables the cap.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// TranscriptsConfig selects where channel and private transcripts go.
type TranscriptsConfig struct {
	// Backend is "sqlite" or "files".
	Backend      string `mapstructure:"backend" yaml:"backend"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	Dir          string `mapstructure:"dir" yaml:"dir"`
}

// ChannelConfig is one persisted registry entry.
type ChannelConfig struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	Static       bool     `mapstructure:"static" yaml:"static,omitempty"`
	Founder      string   `mapstructure:"founder" yaml:"founder,omitempty"`
	Operators    []string `mapstructure:"operators" yaml:"operators,omitempty"`
	Topic        string   `mapstructure:"topic" yaml:"topic,omitempty"`
	Key          string   `mapstructure:"key" yaml:"key,omitempty"`
	AntiSpam     bool     `mapstructure:"antispam" yaml:"antispam"`
	SpamSettings string   `mapstructure:"spam_settings" yaml:"spam_settings"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Lobby: LobbyConfig{
			Address:           "localhost",
			Port:              8200,
			Username:          "ChanServ",
			ReconnectDelay:    10 * time.Second,
			KeepAliveInterval: 15 * time.Second,
		},
		Gateway: GatewayConfig{
			Port:         8201,
			IdleTimeout:  30 * time.Second,
			QueryTimeout: 10 * time.Second,
			MaxSessions:  64,
			AcceptRate:   20,
			AcceptBurst:  10,
		},
		Status: StatusConfig{
			Addr:              "127.0.0.1:8202",
			ReadHeaderTimeout: 5 * time.Second,
			RequestsPerMinute: 600,
		},
		Transcripts: TranscriptsConfig{
			Backend:      "sqlite",
			DatabasePath: "chanserv.db",
			Dir:          "logs",
		},
		ShutdownTimeout: 5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Lobby.Address != "" {
		c.Lobby.Address = other.Lobby.Address
	}
	if other.Lobby.Port != 0 {
		c.Lobby.Port = other.Lobby.Port
	}
	if other.Lobby.Username != "" {
		c.Lobby.Username = other.Lobby.Username
	}
	if other.Lobby.Password != "" {
		c.Lobby.Password = other.Lobby.Password
	}
	if other.Gateway.Port != 0 {
		c.Gateway.Port = other.Gateway.Port
	}
	if other.Status.Addr != "" {
		c.Status.Addr = other.Status.Addr
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}

// Channel converts the entry into a registry channel.
func (cc ChannelConfig) Channel() *core.Channel {
	ch := core.NewChannel(cc.Name)
	ch.Static = cc.Static
	ch.Topic = cc.Topic
	ch.Key = cc.Key
	ch.AntiSpam = cc.AntiSpam
	ch.SpamSettings = cc.SpamSettings
	if ch.SpamSettings == "" {
		ch.SpamSettings = antispam.DefaultSettings
	}
	if !cc.Static {
		ch.Founder = cc.Founder
		for _, op := range cc.Operators {
			ch.AddOperator(op)
		}
	}
	return ch
}

// ChannelsFromCore snapshots the registry for persistence.
func ChannelsFromCore(chans []*core.Channel) []ChannelConfig {
	out := make([]ChannelConfig, 0, len(chans))
	for _, ch := range chans {
		cc := ChannelConfig{
			Name:         ch.Name,
			Static:       ch.Static,
			Topic:        ch.Topic,
			Key:          ch.Key,
			AntiSpam:     ch.AntiSpam,
			SpamSettings: ch.SpamSettings,
		}
		if !ch.Static {
			cc.Founder = ch.Founder
			cc.Operators = append([]string(nil), ch.Operators...)
		}
		out = append(out, cc)
	}
	return out
}
