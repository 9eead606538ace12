package config

const (
	EventsProviderNop   = "nop"
	EventsProviderKafka = "kafka"
)

const (
	defaultAPITarget      = "http://localhost:8000"
	defaultTimeoutSeconds = 60

	defaultSearchK = 6

	defaultPlaybackCommand = "ffplay"
	defaultPlaybackArgs    = "-nodisp -autoexit -loglevel quiet"

	defaultEventsBrokers = "localhost:9092"
	defaultEventsTopic   = "palace.stages"

	defaultServeListen = ":8090"

	defaultReindexWorkers = 3
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			APITarget:      defaultAPITarget,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Search: SearchConfig{
			DefaultK: defaultSearchK,
		},
		Playback: PlaybackConfig{
			Command: defaultPlaybackCommand,
			Args:    defaultPlaybackArgs,
		},
		Events: EventsConfig{
			Provider: EventsProviderNop,
			Brokers:  defaultEventsBrokers,
			Topic:    defaultEventsTopic,
		},
		Serve: ServeConfig{
			Listen: defaultServeListen,
		},
		Reindex: ReindexConfig{
			Workers: defaultReindexWorkers,
		},
	}
}
