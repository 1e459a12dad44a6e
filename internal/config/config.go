package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const appName = "callstack"

// Config stores runtime configuration for the desktop shell and the CLI.
type Config struct {
	Environment string          `yaml:"environment" toml:"environment"`
	Backend     BackendConfig   `yaml:"backend" toml:"backend"`
	Auth        AuthConfig      `yaml:"auth" toml:"auth"`
	Audio       AudioConfig     `yaml:"audio" toml:"audio"`
	Preview     PreviewConfig   `yaml:"preview" toml:"preview"`
	Activity    ActivityConfig  `yaml:"activity" toml:"activity"`
	Log         LogConfig       `yaml:"log" toml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

type BackendConfig struct {
	Origin    string `yaml:"origin" toml:"origin"`
	TimeoutMS int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

type AuthConfig struct {
	// Origin defaults to the backend origin.
	Origin      string `yaml:"origin" toml:"origin"`
	SessionFile string `yaml:"session_file" toml:"session_file"`
	CountryCode string `yaml:"country_code" toml:"country_code"`
	RedirectURL string `yaml:"redirect_url" toml:"redirect_url"`
	TimeoutMS   int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

type AudioConfig struct {
	Command     string `yaml:"command" toml:"command"`
	InputFormat string `yaml:"input_format" toml:"input_format"`
	InputDevice string `yaml:"input_device" toml:"input_device"`
	Container   string `yaml:"container" toml:"container"`
	SampleRate  int    `yaml:"sample_rate" toml:"sample_rate"`
	Channels    int    `yaml:"channels" toml:"channels"`
	ChunkSize   int    `yaml:"chunk_size" toml:"chunk_size"`
}

type PreviewConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url" toml:"api_base_url"`
	Model       string `yaml:"model" toml:"model"`
	Language    string `yaml:"language" toml:"language"`
	SmartFormat bool   `yaml:"smart_format" toml:"smart_format"`
	GraceMS     int    `yaml:"grace_ms" toml:"grace_ms"`
}

type ActivityConfig struct {
	Path          string `yaml:"path" toml:"path"`
	RetentionMode string `yaml:"retention_mode" toml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
	MaxCycles     int    `yaml:"max_cycles" toml:"max_cycles"`
}

type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

type TelemetryConfig struct {
	PrometheusBind string `yaml:"prometheus_bind" toml:"prometheus_bind"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" toml:"otlp_insecure"`
	StdoutTracing  bool   `yaml:"stdout_tracing" toml:"stdout_tracing"`
	SentryDSN      string `yaml:"sentry_dsn" toml:"sentry_dsn"`
}

func (c BackendConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }
func (c AuthConfig) Timeout() time.Duration    { return time.Duration(c.TimeoutMS) * time.Millisecond }
func (c PreviewConfig) Grace() time.Duration   { return time.Duration(c.GraceMS) * time.Millisecond }

// Dir is the per-user directory holding the config, session and activity files.
func Dir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appName)
	}
	return "." + appName
}

// DefaultPath returns the first config file found in Dir, or "" when there is none.
func DefaultPath() string {
	dir := Dir()
	return firstExisting(
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.toml"),
	)
}

func Default() Config {
	dir := Dir()
	return Config{
		Environment: "production",
		Backend: BackendConfig{
			Origin:    "http://localhost:8000",
			TimeoutMS: 60000,
		},
		Auth: AuthConfig{
			SessionFile: filepath.Join(dir, "session.yaml"),
			CountryCode: "1",
			RedirectURL: "http://localhost:3000/auth/callback",
			TimeoutMS:   15000,
		},
		Audio: AudioConfig{
			Command:     "ffmpeg",
			InputFormat: "pulse",
			InputDevice: "default",
			Container:   "webm",
			SampleRate:  48000,
			Channels:    1,
			ChunkSize:   4096,
		},
		Preview: PreviewConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
			GraceMS:     1000,
		},
		Activity: ActivityConfig{
			Path:          filepath.Join(dir, "activity.db"),
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxCycles:     1000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: true,
		},
	}
}

// Load reads the optional file at path (YAML, or TOML by extension), applies
// CALLSTACK_* environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Environment, "CALLSTACK_ENVIRONMENT")
	overrideString(&cfg.Backend.Origin, "CALLSTACK_BACKEND_ORIGIN")
	overrideInt(&cfg.Backend.TimeoutMS, "CALLSTACK_BACKEND_TIMEOUT_MS")
	overrideString(&cfg.Auth.Origin, "CALLSTACK_AUTH_ORIGIN")
	overrideString(&cfg.Auth.SessionFile, "CALLSTACK_AUTH_SESSION_FILE")
	overrideString(&cfg.Auth.CountryCode, "CALLSTACK_AUTH_COUNTRY_CODE")
	overrideString(&cfg.Auth.RedirectURL, "CALLSTACK_AUTH_REDIRECT_URL")
	overrideInt(&cfg.Auth.TimeoutMS, "CALLSTACK_AUTH_TIMEOUT_MS")
	overrideString(&cfg.Audio.Command, "CALLSTACK_FFMPEG_COMMAND")
	overrideString(&cfg.Audio.InputFormat, "CALLSTACK_AUDIO_INPUT_FORMAT")
	cfg.Audio.InputDevice = firstNonEmpty(os.Getenv("CALLSTACK_AUDIO_INPUT_DEVICE"), os.Getenv("PULSE_SOURCE"), cfg.Audio.InputDevice)
	overrideString(&cfg.Audio.Container, "CALLSTACK_AUDIO_CONTAINER")
	overrideInt(&cfg.Audio.SampleRate, "CALLSTACK_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "CALLSTACK_CHANNELS")
	overrideInt(&cfg.Audio.ChunkSize, "CALLSTACK_AUDIO_CHUNK_SIZE")
	overrideBool(&cfg.Preview.Enabled, "CALLSTACK_PREVIEW_ENABLED")
	cfg.Preview.APIKey = firstNonEmpty(os.Getenv("CALLSTACK_PREVIEW_API_KEY"), os.Getenv("DEEPGRAM_API_KEY"), cfg.Preview.APIKey)
	overrideString(&cfg.Preview.APIBaseURL, "DEEPGRAM_API_BASE")
	overrideString(&cfg.Preview.Model, "DEEPGRAM_MODEL")
	overrideString(&cfg.Preview.Language, "DEEPGRAM_LANGUAGE")
	overrideBool(&cfg.Preview.SmartFormat, "DEEPGRAM_SMART_FORMAT")
	overrideNonNegativeInt(&cfg.Preview.GraceMS, "CALLSTACK_STREAMING_GRACE_MS")
	overrideString(&cfg.Activity.Path, "CALLSTACK_ACTIVITY_PATH")
	overrideString(&cfg.Activity.RetentionMode, "CALLSTACK_ACTIVITY_RETENTION_MODE")
	overrideInt(&cfg.Activity.RetentionDays, "CALLSTACK_ACTIVITY_RETENTION_DAYS")
	overrideInt(&cfg.Activity.MaxCycles, "CALLSTACK_ACTIVITY_MAX_CYCLES")
	overrideString(&cfg.Log.Level, "CALLSTACK_LOG_LEVEL")
	overrideString(&cfg.Log.Format, "CALLSTACK_LOG_FORMAT")
	overrideString(&cfg.Log.File, "CALLSTACK_LOG_FILE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CALLSTACK_PROMETHEUS_BIND")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CALLSTACK_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CALLSTACK_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTracing, "CALLSTACK_STDOUT_TRACING")
	cfg.Telemetry.SentryDSN = firstNonEmpty(os.Getenv("CALLSTACK_SENTRY_DSN"), os.Getenv("SENTRY_DSN"), cfg.Telemetry.SentryDSN)
}

func normalize(cfg *Config) {
	cfg.Backend.Origin = strings.TrimRight(strings.TrimSpace(cfg.Backend.Origin), "/")
	cfg.Auth.Origin = strings.TrimRight(firstNonEmpty(cfg.Auth.Origin, cfg.Backend.Origin), "/")
	cfg.Auth.CountryCode = strings.TrimPrefix(strings.TrimSpace(cfg.Auth.CountryCode), "+")
	cfg.Audio.Container = strings.ToLower(strings.TrimSpace(cfg.Audio.Container))
	cfg.Activity.RetentionMode = strings.ToLower(strings.TrimSpace(cfg.Activity.RetentionMode))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Auth.SessionFile = expandHome(cfg.Auth.SessionFile)
	cfg.Activity.Path = expandHome(cfg.Activity.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
}

func validate(cfg Config) error {
	if err := validateOrigin("backend.origin", cfg.Backend.Origin); err != nil {
		return err
	}
	if err := validateOrigin("auth.origin", cfg.Auth.Origin); err != nil {
		return err
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return errors.New("backend.timeout_ms must be positive")
	}
	if cfg.Auth.TimeoutMS <= 0 {
		return errors.New("auth.timeout_ms must be positive")
	}
	if cfg.Auth.SessionFile == "" {
		return errors.New("auth.session_file must not be empty")
	}
	if _, err := strconv.Atoi(cfg.Auth.CountryCode); err != nil || len(cfg.Auth.CountryCode) > 3 {
		return fmt.Errorf("auth.country_code %q must be 1-3 digits", cfg.Auth.CountryCode)
	}
	if strings.TrimSpace(cfg.Audio.Command) == "" {
		return errors.New("audio.command must not be empty")
	}
	switch cfg.Audio.Container {
	case "webm", "ogg", "wav":
	default:
		return fmt.Errorf("audio.container %q must be webm, ogg or wav", cfg.Audio.Container)
	}
	if cfg.Preview.Enabled && strings.TrimSpace(cfg.Preview.APIKey) == "" {
		return errors.New("preview.api_key is required when preview is enabled")
	}
	switch cfg.Activity.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return fmt.Errorf("activity.retention_mode %q must be ephemeral, session or persistent", cfg.Activity.RetentionMode)
	}
	if cfg.Activity.RetentionMode != "ephemeral" && cfg.Activity.Path == "" {
		return errors.New("activity.path must not be empty when activity is kept")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", cfg.Log.Format)
	}
	return nil
}

func validateOrigin(field string, value string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	parsed, err := url.Parse(value)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s %q must be an http(s) URL", field, value)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func overrideString(target *string, envKey string) {
	if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*target = parsed
	}
}

func overrideNonNegativeInt(target *int, envKey string) {
	value := strings.TrimSpace(os.Getenv(envKey))
	if value == "" {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		*target = parsed
	}
}

func overrideBool(target *bool, envKey string) {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(envKey))) {
	case "1", "true", "yes", "on":
		*target = true
	case "0", "false", "no", "off":
		*target = false
	}
}
