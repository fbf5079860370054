package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Synth       SynthConfig      `yaml:"synth"`
	TTS         TTSConfig        `yaml:"tts"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRequests   int    `yaml:"max_requests"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SynthConfig locates the dictionary and voice and selects how the analyzer
// and engine are hosted.
type SynthConfig struct {
	Dictionary      string `yaml:"dictionary"`
	Model           string `yaml:"model"`
	AnalyzerMode    string `yaml:"analyzer_mode"` // mock, exec
	AnalyzerCommand string `yaml:"analyzer_command"`
	EngineMode      string `yaml:"engine_mode"` // mock, exec
	EngineCommand   string `yaml:"engine_command"`
	Sessions        int    `yaml:"sessions"`
}

type TTSConfig struct {
	Enabled         bool `yaml:"enabled"`
	ChunkDurationMS int  `yaml:"chunk_duration_ms"`
	TimeoutMS       int  `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "jtalk-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "jtalk-node-1",
			Role:              "tts",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/jtalk-history.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRequests:   10000,
		},
		Synth: SynthConfig{
			Dictionary:   "./dic",
			Model:        "./voice.htsvoice",
			AnalyzerMode: "mock",
			EngineMode:   "mock",
			Sessions:     2,
		},
		TTS: TTSConfig{
			Enabled:         true,
			ChunkDurationMS: 400,
			TimeoutMS:       45000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "JTALK_RUNTIME_NAME")
	overrideString(&cfg.Environment, "JTALK_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "JTALK_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "JTALK_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "JTALK_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "JTALK_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "JTALK_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "JTALK_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "JTALK_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "JTALK_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "JTALK_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "JTALK_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "JTALK_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "JTALK_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "JTALK_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "JTALK_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "JTALK_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "JTALK_NODE_ID")
	overrideString(&cfg.Node.Role, "JTALK_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "JTALK_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "JTALK_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "JTALK_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "JTALK_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "JTALK_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRequests, "JTALK_EVENT_STORE_MAX_REQUESTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "JTALK_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Synth.Dictionary, "JTALK_SYNTH_DICTIONARY")
	overrideString(&cfg.Synth.Model, "JTALK_SYNTH_MODEL")
	overrideString(&cfg.Synth.AnalyzerMode, "JTALK_SYNTH_ANALYZER_MODE")
	overrideString(&cfg.Synth.AnalyzerCommand, "JTALK_SYNTH_ANALYZER_COMMAND")
	overrideString(&cfg.Synth.EngineMode, "JTALK_SYNTH_ENGINE_MODE")
	overrideString(&cfg.Synth.EngineCommand, "JTALK_SYNTH_ENGINE_COMMAND")
	overrideInt(&cfg.Synth.Sessions, "JTALK_SYNTH_SESSIONS")
	overrideBool(&cfg.TTS.Enabled, "JTALK_TTS_ENABLED")
	overrideInt(&cfg.TTS.ChunkDurationMS, "JTALK_TTS_CHUNK_DURATION_MS")
	overrideInt(&cfg.TTS.TimeoutMS, "JTALK_TTS_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.EventStore.MaxRequests < 0 {
		return errors.New("event_store.max_requests must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Synth.Dictionary == "" {
		return errors.New("synth.dictionary must not be empty")
	}
	if cfg.Synth.Model == "" {
		return errors.New("synth.model must not be empty")
	}
	if err := validateMode("synth.analyzer", cfg.Synth.AnalyzerMode, cfg.Synth.AnalyzerCommand); err != nil {
		return err
	}
	if err := validateMode("synth.engine", cfg.Synth.EngineMode, cfg.Synth.EngineCommand); err != nil {
		return err
	}
	if cfg.Synth.Sessions <= 0 {
		return errors.New("synth.sessions must be >= 1")
	}
	if cfg.TTS.Enabled {
		if cfg.TTS.ChunkDurationMS < 0 {
			return errors.New("tts.chunk_duration_ms must be >= 0")
		}
		if cfg.TTS.TimeoutMS <= 0 {
			return errors.New("tts.timeout_ms must be positive")
		}
	}
	return nil
}

func validateMode(prefix, mode, command string) error {
	switch mode {
	case "mock":
	case "exec":
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("%s_command must be set when %s_mode=exec", prefix, prefix)
		}
	default:
		return fmt.Errorf("%s_mode must be one of mock|exec", prefix)
	}
	return nil
}
