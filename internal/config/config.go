package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	APIVersionV1 = "v1"
	APIVersionV2 = "v2"
)

// ConferenceConfig holds all runtime settings of the conference service.
type ConferenceConfig struct {
	Port    string `envconfig:"PORT" default:"8081"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`
	AppName string `envconfig:"APP_NAME" default:"telnyx-conf"`
	LogEnv  string `envconfig:"LOG_ENV" default:"development"`

	Telnyx TelnyxConfig
	IVR    IVRConfig
	Worker WorkerConfig

	// AdminSecretKey enables JWT protection of the operator routes when set.
	AdminSecretKey string `envconfig:"ADMIN_SECRET_KEY"`

	Redis    RedisConfig
	PubSub   PubSubConfig
	Database DatabaseConfig
}

// TelnyxConfig holds provider credentials and command settings.
type TelnyxConfig struct {
	APIVersion   string        `envconfig:"TELNYX_API_VERSION" default:"v2"`
	BaseURL      string        `envconfig:"TELNYX_API_BASE_URL" default:"https://api.telnyx.com"`
	APIKeyV1     string        `envconfig:"TELNYX_API_KEY_V1"`
	APISecretV1  string        `envconfig:"TELNYX_API_SECRET_V1"`
	APIAuthV2    string        `envconfig:"TELNYX_API_AUTH_V2"`
	WaitingURL   string        `envconfig:"TELNYX_WAITING_URL"`
	ConnectionID string        `envconfig:"TELNYX_CONNECTION_ID"`
	AccountFile  string        `envconfig:"TELNYX_ACCOUNT_FILE"`
	Timeout      time.Duration `envconfig:"TELNYX_COMMAND_TIMEOUT" default:"10s"`
	RateLimit    float64       `envconfig:"TELNYX_COMMAND_RATE" default:"10"`
	Burst        int           `envconfig:"TELNYX_COMMAND_BURST" default:"5"`
}

// IVRConfig holds the conference prompts and dial-out defaults.
type IVRConfig struct {
	ConferenceName string `envconfig:"CONFERENCE_NAME" default:"myconf"`
	Voice          string `envconfig:"IVR_VOICE" default:"female"`
	Language       string `envconfig:"IVR_LANGUAGE" default:"en-US"`
	DialFrom       string `envconfig:"DIAL_FROM" default:"conf"`
	DefaultRegion  string `envconfig:"PHONE_DEFAULT_REGION" default:"US"`
}

// WorkerConfig sizes the webhook dispatch pool.
type WorkerConfig struct {
	Shards    int `envconfig:"DISPATCH_WORKERS" default:"8"`
	QueueSize int `envconfig:"DISPATCH_QUEUE_SIZE" default:"64"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Channel  string `envconfig:"REDIS_EVENTS_CHANNEL" default:"conference:events"`
}

type PubSubConfig struct {
	ProjectID string `envconfig:"PUBSUB_PROJECT_ID"`
	TopicName string `envconfig:"PUBSUB_TOPIC_NAME"`
	PubID     string `envconfig:"PUBSUB_PUB_ID" default:"conference"`
}

// Enabled reports whether lifecycle export to Pub/Sub is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.TopicName != ""
}

type DatabaseConfig struct {
	Enabled  bool   `envconfig:"DB_ENABLED" default:"false"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"conference"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// accountFile mirrors the telnyx-account.json credentials file.
type accountFile struct {
	APIKeyV1     string `json:"telnyx_api_key_v1"`
	APISecretV1  string `json:"telnyx_api_secret_v1"`
	APIAuthV2    string `json:"telnyx_api_auth_v2"`
	WaitingURL   string `json:"telnyx_waiting_url"`
	ConnectionID string `json:"telnyx_connection_id"`
}

// LoadConfigFromEnv reads the configuration from the environment, then overlays the
// account file named by TELNYX_ACCOUNT_FILE when present.
func LoadConfigFromEnv() (*ConferenceConfig, error) {
	var cfg ConferenceConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.Telnyx.AccountFile != "" {
		if err := cfg.Telnyx.loadAccountFile(cfg.Telnyx.AccountFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (t *TelnyxConfig) loadAccountFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read account file %s: %w", path, err)
	}

	var account accountFile
	if err := json.Unmarshal(data, &account); err != nil {
		return fmt.Errorf("failed to parse account file %s: %w", path, err)
	}

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&t.APIKeyV1, account.APIKeyV1)
	overlay(&t.APISecretV1, account.APISecretV1)
	overlay(&t.APIAuthV2, account.APIAuthV2)
	overlay(&t.WaitingURL, account.WaitingURL)
	overlay(&t.ConnectionID, account.ConnectionID)
	return nil
}

// Validate checks that the credentials for the selected API version are present.
func (c *ConferenceConfig) Validate() error {
	switch c.Telnyx.APIVersion {
	case APIVersionV1:
		if c.Telnyx.APIKeyV1 == "" || c.Telnyx.APISecretV1 == "" {
			return fmt.Errorf("TELNYX_API_KEY_V1 and TELNYX_API_SECRET_V1 are required for API v1")
		}
	case APIVersionV2:
		if c.Telnyx.APIAuthV2 == "" {
			return fmt.Errorf("TELNYX_API_AUTH_V2 is required for API v2")
		}
	default:
		return fmt.Errorf("unsupported TELNYX_API_VERSION %q", c.Telnyx.APIVersion)
	}
	if c.AppName == "" {
		return fmt.Errorf("APP_NAME cannot be empty")
	}
	if c.Worker.Shards < 1 || c.Worker.QueueSize < 1 {
		return fmt.Errorf("DISPATCH_WORKERS and DISPATCH_QUEUE_SIZE must be positive")
	}
	return nil
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}
