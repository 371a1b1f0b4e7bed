package config

type Config struct {
	Server   ServerConfig
	Ollama   OllamaConfig
	Whisper  WhisperConfig
	Search   SearchConfig
	Webhook  WebhookConfig
	Calendar CalendarConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port      int
	MCPPort   int
	AuthToken string
}

type OllamaConfig struct {
	BaseURL     string
	Model       string
	SearchModel string
}

type WhisperConfig struct {
	BaseURL string
}

type SearchConfig struct {
	APIKey   string
	EngineID string
}

type WebhookConfig struct {
	EmailURL string
}

type CalendarConfig struct {
	BaseURL string
}

type StorageConfig struct {
	DataDir string
}

type PipelineConfig struct {
	Workers     int
	MaxAttempts int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4000,
			MCPPort: 4001,
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "llama3.2",
			SearchModel: "llama3.2",
		},
		Whisper: WhisperConfig{
			BaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Pipeline: PipelineConfig{
			Workers:     2,
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a JSON file at
// $XDG_CONFIG_HOME/murmur/config.json, then applies MURMUR_* environment
// overrides. Secrets (auth token, search API key) are only read from the
// environment.
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
