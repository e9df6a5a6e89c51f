// Package config provides the configuration structure for the narration-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Secret backends.
const (
	SecretsBackendNATS = "nats"
	SecretsBackendEnv  = "env"
)

// Defaults applied by ApplyDefaults.
const (
	defaultNATSURL               = "nats://127.0.0.1:4222"
	defaultTriggerSubject        = "narration.text.created"
	defaultQueueGroup            = "narration-workers"
	defaultSourceBucket          = "NARRATION_SCRIPTS"
	defaultAudioBucket           = "NARRATION_AUDIO"
	defaultSecretsBucket         = "NARRATION_SECRETS"
	defaultSourceLanguage        = "en"
	defaultModelID               = "eleven_multilingual_v2"
	defaultRunTimeoutSeconds     = 300
	defaultElevenLabsBaseURL     = "https://api.elevenlabs.io"
	defaultElevenLabsSecret      = "elevenlabs-api-key"
	defaultSynthesisTimeoutSecs  = 120
	defaultTranslationModel      = "gpt-4o-mini"
	defaultTranslationTimeoutSec = 60
	defaultLogsDir               = "logs"
)

// Static errors.
var (
	ErrTriggerSubjectEmpty = errors.New("nats.trigger_subject cannot be empty")
	ErrAudioBucketEmpty    = errors.New("nats.audio_object_store_bucket cannot be empty")
	ErrUnknownSecretsStore = errors.New("unknown secrets backend")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	TriggerSubject         string `toml:"trigger_subject"`
	QueueGroup             string `toml:"queue_group"`
	CompletedSubject       string `toml:"completed_subject"`
	SourceBucket           string `toml:"source_bucket"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	SecretsBucket          string `toml:"secrets_bucket"`
}

// NarrationConfig holds the pipeline defaults.
type NarrationConfig struct {
	SourceLanguage string `toml:"source_language"`
	DefaultVoice   string `toml:"default_voice"`
	ModelID        string `toml:"model_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ElevenLabsConfig holds the speech synthesis settings.
type ElevenLabsConfig struct {
	BaseURL        string `toml:"base_url"`
	SecretName     string `toml:"secret_name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TranslationConfig holds the translation settings. Translation is disabled when
// SecretName is empty.
type TranslationConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	SecretName     string `toml:"secret_name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SecretsConfig selects where credentials are read from.
type SecretsConfig struct {
	Backend string `toml:"backend"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS        NATSConfig        `toml:"nats"`
	Narration   NarrationConfig   `toml:"narration"`
	ElevenLabs  ElevenLabsConfig  `toml:"elevenlabs"`
	Translation TranslationConfig `toml:"translation"`
	Secrets     SecretsConfig     `toml:"secrets"`
	Paths       PathsConfig       `toml:"paths"`
}

// Load loads the configuration for the narration-service, fills defaults and
// validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills every empty field that has a sensible default.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.TriggerSubject, defaultTriggerSubject)
	setString(&c.NATS.QueueGroup, defaultQueueGroup)
	setString(&c.NATS.SourceBucket, defaultSourceBucket)
	setString(&c.NATS.AudioObjectStoreBucket, defaultAudioBucket)
	setString(&c.NATS.SecretsBucket, defaultSecretsBucket)

	setString(&c.Narration.SourceLanguage, defaultSourceLanguage)
	setString(&c.Narration.ModelID, defaultModelID)
	setInt(&c.Narration.TimeoutSeconds, defaultRunTimeoutSeconds)

	setString(&c.ElevenLabs.BaseURL, defaultElevenLabsBaseURL)
	setString(&c.ElevenLabs.SecretName, defaultElevenLabsSecret)
	setInt(&c.ElevenLabs.TimeoutSeconds, defaultSynthesisTimeoutSecs)

	setString(&c.Translation.Model, defaultTranslationModel)
	setInt(&c.Translation.TimeoutSeconds, defaultTranslationTimeoutSec)

	setString(&c.Secrets.Backend, SecretsBackendNATS)
	setString(&c.Paths.BaseLogsDir, defaultLogsDir)
}

// Validate reports the first setting that makes the service unusable.
func (c *Config) Validate() error {
	if c.NATS.TriggerSubject == "" {
		return ErrTriggerSubjectEmpty
	}

	if c.NATS.AudioObjectStoreBucket == "" {
		return ErrAudioBucketEmpty
	}

	switch c.Secrets.Backend {
	case SecretsBackendNATS, SecretsBackendEnv:
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownSecretsStore, c.Secrets.Backend)
	}

	return nil
}

// TranslationEnabled reports whether a translator should be wired.
func (c *Config) TranslationEnabled() bool {
	return c.Translation.SecretName != ""
}

// RunTimeout is the invocation-level deadline applied to each triggering event.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Narration.TimeoutSeconds) * time.Second
}

// SynthesisTimeout is the HTTP timeout for one synthesis call.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.ElevenLabs.TimeoutSeconds) * time.Second
}

// TranslationTimeout bounds one translation call.
func (c *Config) TranslationTimeout() time.Duration {
	return time.Duration(c.Translation.TimeoutSeconds) * time.Second
}

func setString(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field <= 0 {
		*field = fallback
	}
}
