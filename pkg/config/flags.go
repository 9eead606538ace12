package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on "palace submit", "palace search", and "palace serve").
type Flag struct {
	// Name is the long flag name (e.g. "api-target").
	Name string

	// Shorthand is the one-letter short flag (e.g. "a"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.api_target").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPITarget      = "api-target"
	FlagTimeout        = "timeout"
	FlagSearchK        = "results"
	FlagPlayCommand    = "player"
	FlagPlayArgs       = "player-args"
	FlagEventsProvider = "events-provider"
	FlagEventsBrokers  = "events-brokers"
	FlagEventsTopic    = "events-topic"
	FlagServeListen    = "listen"
	FlagWorkers        = "workers"
)

// Registry is the default FlagSet shared by every palace command.
var Registry = FlagSet{
	FlagAPITarget:      {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Processing service URL"},
	FlagTimeout:        {Name: "timeout", ViperKey: "client.timeout_seconds", Description: "Per-request timeout in seconds"},
	FlagSearchK:        {Name: "results", Shorthand: "k", ViperKey: "search.default_k", Description: "Number of search results to return"},
	FlagPlayCommand:    {Name: "player", ViperKey: "playback.command", Description: "External audio player command"},
	FlagPlayArgs:       {Name: "player-args", ViperKey: "playback.args", Description: "Arguments passed to the audio player before the file"},
	FlagEventsProvider: {Name: "events-provider", ViperKey: "events.provider", Description: "Stage event sink (nop, kafka)"},
	FlagEventsBrokers:  {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventsTopic:    {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for stage events"},
	FlagServeListen:    {Name: "listen", Shorthand: "l", ViperKey: "serve.listen", Description: "Address for the companion API to listen on"},
	FlagWorkers:        {Name: "workers", Shorthand: "w", ViperKey: "reindex.workers", Description: "Number of concurrent reindex workers"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
