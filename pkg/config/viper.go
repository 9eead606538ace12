package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/memorypalace/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PALACE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PALACE_CLIENT_API_TARGET, PALACE_SERVE_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("PALACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective configuration after flag, env, file,
// and default precedence has been applied.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			APITarget:      v.GetString("client.api_target"),
			TimeoutSeconds: v.GetUint("client.timeout_seconds"),
		},
		Search: SearchConfig{
			DefaultK: v.GetUint("search.default_k"),
		},
		Playback: PlaybackConfig{
			Command: v.GetString("playback.command"),
			Args:    v.GetString("playback.args"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetString("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Serve: ServeConfig{
			Listen: v.GetString("serve.listen"),
		},
		Reindex: ReindexConfig{
			Workers: v.GetUint("reindex.workers"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.timeout_seconds", d.Client.TimeoutSeconds)

	v.SetDefault("search.default_k", d.Search.DefaultK)

	v.SetDefault("playback.command", d.Playback.Command)
	v.SetDefault("playback.args", d.Playback.Args)

	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("serve.listen", d.Serve.Listen)

	v.SetDefault("reindex.workers", d.Reindex.Workers)
}
