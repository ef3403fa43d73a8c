package config

const (
	DefaultPrimaryURL   = "https://www.counter-strike.net/news/updates?l=english"
	DefaultSecondaryURL = "https://www.counter-strike.net/news/updates?l=ukrainian"
	DefaultSchedule     = "30s"
	DefaultStatePath    = "last_update_hash.txt"
	DefaultPath         = "./csrelay.yaml"
)

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Telegram: TelegramConfig{
			SendTimeout: "15s",
		},
		Source: SourceConfig{
			PrimaryURL: DefaultPrimaryURL,
			Timeout:    "20s",
			MaxBytes:   5 << 20,
		},
		Poll: PollConfig{
			Schedule: DefaultSchedule,
		},
		Delivery: DeliveryConfig{
			SegmentLimit: 3800,
			Pacing:       "1s",
			ParseMode:    "HTML",
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   DefaultStatePath,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Debug: DebugConfig{
			Addr: "127.0.0.1:6060",
		},
	}
}
