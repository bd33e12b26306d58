package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "source.base_url", typ: kString, env: "BIDWATCH_SOURCE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Source.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.BaseURL },
	},
	{
		key: "source.region", typ: kString, env: "BIDWATCH_SOURCE_REGION",
		apply:   func(cfg *Config, v any) { cfg.Source.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Region },
	},
	{
		key: "source.club_code", typ: kString, env: "BIDWATCH_SOURCE_CLUB_CODE",
		apply:   func(cfg *Config, v any) { cfg.Source.ClubCode = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.ClubCode },
	},
	{
		key: "schedule.interval", typ: kString, env: "BIDWATCH_SCHEDULE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Interval },
	},
	{
		key: "schedule.record_pacing", typ: kString, env: "BIDWATCH_SCHEDULE_RECORD_PACING",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RecordPacing = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.RecordPacing },
	},
	{
		key: "schedule.retry_budget", typ: kInt, env: "BIDWATCH_SCHEDULE_RETRY_BUDGET",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RetryBudget = v.(int) },
		extract: func(cfg Config) any { return cfg.Schedule.RetryBudget },
	},
	{
		key: "schedule.retry_pacing", typ: kString, env: "BIDWATCH_SCHEDULE_RETRY_PACING",
		apply:   func(cfg *Config, v any) { cfg.Schedule.RetryPacing = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.RetryPacing },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BIDWATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.port", typ: kInt, env: "BIDWATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "publish.enabled", typ: kBool, env: "BIDWATCH_PUBLISH_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Publish.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Publish.Enabled },
	},
	{
		key: "log.level", typ: kString, env: "BIDWATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
