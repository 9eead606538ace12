package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent palace configuration stored as config.toml
// in the .palace/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Client   ClientConfig   `toml:"client"`
	Search   SearchConfig   `toml:"search"`
	Playback PlaybackConfig `toml:"playback"`
	Events   EventsConfig   `toml:"events"`
	Serve    ServeConfig    `toml:"serve"`
	Reindex  ReindexConfig  `toml:"reindex"`
}

// ClientConfig holds settings for talking to the remote processing service.
// APITarget is a full URL (scheme + host + port).
type ClientConfig struct {
	APITarget      string `toml:"api_target,omitempty"`
	TimeoutSeconds uint   `toml:"timeout_seconds,omitempty"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultK uint `toml:"default_k,omitempty"`
}

// PlaybackConfig names the external player used for narration audio. Args is
// split on whitespace and the downloaded file path is appended.
type PlaybackConfig struct {
	Command string `toml:"command,omitempty"`
	Args    string `toml:"args,omitempty"`
}

// EventsConfig selects where pipeline stage events are published.
// Provider is "nop" or "kafka"; Brokers is comma separated.
type EventsConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// ServeConfig holds companion API server settings.
type ServeConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ReindexConfig holds settings for the background embed worker pool.
type ReindexConfig struct {
	Workers uint `toml:"workers,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.api_target":      stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.timeout_seconds": uintKey("client.timeout_seconds", func(c *Config) *uint { return &c.Client.TimeoutSeconds }),
	"search.default_k":       uintKey("search.default_k", func(c *Config) *uint { return &c.Search.DefaultK }),
	"playback.command":       stringKey(func(c *Config) *string { return &c.Playback.Command }),
	"playback.args":          stringKey(func(c *Config) *string { return &c.Playback.Args }),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventsProviderNop, EventsProviderKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (available: %s, %s)", v, EventsProviderNop, EventsProviderKafka)
			}
		},
	},
	"events.brokers":  stringKey(func(c *Config) *string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"serve.listen":    stringKey(func(c *Config) *string { return &c.Serve.Listen }),
	"reindex.workers": uintKey("reindex.workers", func(c *Config) *uint { return &c.Reindex.Workers }),
}
