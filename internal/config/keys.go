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
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MURMUR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "MURMUR_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "server.auth_token", typ: kString, env: "MURMUR_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AuthToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "MURMUR_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "MURMUR_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.search_model", typ: kString, env: "MURMUR_OLLAMA_SEARCH_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.SearchModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.SearchModel },
	},
	{
		key: "whisper.base_url", typ: kString, env: "MURMUR_WHISPER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Whisper.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Whisper.BaseURL },
	},
	{
		key: "search.api_key", typ: kString, env: "MURMUR_SEARCH_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "search.engine_id", typ: kString, env: "MURMUR_SEARCH_ENGINE_ID",
		apply:   func(cfg *Config, v any) { cfg.Search.EngineID = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.EngineID },
	},
	{
		key: "webhook.email_url", typ: kString, env: "MURMUR_WEBHOOK_EMAIL_URL",
		apply:   func(cfg *Config, v any) { cfg.Webhook.EmailURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Webhook.EmailURL },
	},
	{
		key: "calendar.base_url", typ: kString, env: "MURMUR_CALENDAR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Calendar.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendar.BaseURL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MURMUR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "pipeline.workers", typ: kInt, env: "MURMUR_PIPELINE_WORKERS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Workers = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.Workers },
	},
	{
		key: "pipeline.max_attempts", typ: kInt, env: "MURMUR_PIPELINE_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxAttempts },
	},
	{
		key: "log.level", typ: kString, env: "MURMUR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		}
	}
}
