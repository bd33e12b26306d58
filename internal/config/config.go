package config

import "time"

type Config struct {
	Source   SourceConfig
	Schedule ScheduleConfig
	Storage  StorageConfig
	Server   ServerConfig
	Publish  PublishConfig
	Log      LogConfig
}

type SourceConfig struct {
	BaseURL  string
	Region   string
	ClubCode string
}

type ScheduleConfig struct {
	Interval     string
	RecordPacing string
	RetryBudget  int
	RetryPacing  string
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	Port int
}

type PublishConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Source: SourceConfig{
			BaseURL:  "https://bid.cbf.com.br",
			Region:   "SC",
			ClubCode: "20019",
		},
		Schedule: ScheduleConfig{
			Interval:     "10m",
			RecordPacing: "2s",
			RetryBudget:  25,
			RetryPacing:  "2s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 4810,
		},
		Publish: PublishConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/bidwatch/config.json with BIDWATCH_* environment
// variables overriding backend values. Publisher credentials are not part
// of the Config value; fetch them separately with Credentials.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// Interval returns the parsed cycle interval, falling back to 10 minutes
// when the configured value does not parse.
func (c ScheduleConfig) IntervalDuration() time.Duration {
	return parseDurationOr(c.Interval, 10*time.Minute)
}

// RecordPacingDuration returns the parsed delay between record publishes.
func (c ScheduleConfig) RecordPacingDuration() time.Duration {
	return parseDurationOr(c.RecordPacing, 2*time.Second)
}

// RetryPacingDuration returns the parsed delay between challenge attempts.
func (c ScheduleConfig) RetryPacingDuration() time.Duration {
	return parseDurationOr(c.RetryPacing, 2*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
