// Package config defines the process configuration for the AIRCx engine.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Equipment definitions live in a separate JSON document named by
// EQUIPMENT_CONFIG_PATH; see LoadEquipment. Any invalid value fails startup.
package config

import (
	"time"

	"aircx/internal/types"
)

// SecretString is an alias for types.SecretString so credentials read from the
// environment are redacted when the config is logged.
type SecretString = types.SecretString

// Command transports selectable through COMMAND_TRANSPORT.
const (
	TransportNone = "none"
	TransportMQTT = "mqtt"
	TransportSQS  = "sqs"
)

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"aircx-engine"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Equipment     EquipmentSourceConfig
	Server        ServerConfig
	Database      DatabaseConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	Commands      CommandConfig
	MQTT          MQTTConfig
	AWS           AWSConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// EquipmentSourceConfig locates the equipment definitions.
type EquipmentSourceConfig struct {
	Path string `envconfig:"EQUIPMENT_CONFIG_PATH" validate:"required"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Enabled           bool          `envconfig:"API_ENABLED" default:"true"`
	Addr              string        `envconfig:"API_ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `envconfig:"API_READ_HEADER_TIMEOUT" default:"5s"`
	// RecentRows is how many result rows per equipment the API keeps in memory.
	RecentRows int `envconfig:"API_RECENT_ROWS" default:"500" validate:"gte=0"`
}

// DatabaseConfig holds the Postgres result store settings. An empty URL
// disables the store.
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns int32        `envconfig:"DB_MAX_CONNS" default:"10" validate:"gt=0"`
}

// ClickHouseConfig holds the analytics store settings. No addresses disables
// the store.
type ClickHouseConfig struct {
	Addr     []string     `envconfig:"CLICKHOUSE_ADDR"`
	Database string       `envconfig:"CLICKHOUSE_DATABASE" default:"default"`
	Username string       `envconfig:"CLICKHOUSE_USERNAME" default:"default"`
	Password SecretString `envconfig:"CLICKHOUSE_PASSWORD"`
	Table    string       `envconfig:"CLICKHOUSE_TABLE" default:"diagnostic_results"`
}

// KafkaConfig holds the sample stream consumer settings.
type KafkaConfig struct {
	Brokers     []string      `envconfig:"KAFKA_BROKERS"`
	Topic       string        `envconfig:"KAFKA_TOPIC" default:"aircx.samples"`
	GroupID     string        `envconfig:"KAFKA_GROUP_ID" default:"aircx-engine"`
	PollTimeout time.Duration `envconfig:"KAFKA_POLL_TIMEOUT" default:"5s"`
}

// CommandConfig selects how setpoint commands leave the engine.
type CommandConfig struct {
	Transport  string        `envconfig:"COMMAND_TRANSPORT" default:"none" validate:"oneof=none mqtt sqs"`
	MaxRetries int           `envconfig:"COMMAND_MAX_RETRIES" default:"2" validate:"gte=0"`
	BaseDelay  time.Duration `envconfig:"COMMAND_RETRY_BASE_DELAY" default:"200ms"`
	MaxDelay   time.Duration `envconfig:"COMMAND_RETRY_MAX_DELAY" default:"2s"`
}

// MQTTConfig holds the building gateway broker settings.
type MQTTConfig struct {
	Broker   string        `envconfig:"MQTT_BROKER" validate:"omitempty,url"` // e.g., tcp://gateway:1883
	ClientID string        `envconfig:"MQTT_CLIENT_ID" default:"aircx-engine"`
	Username string        `envconfig:"MQTT_USERNAME"`
	Password SecretString  `envconfig:"MQTT_PASSWORD"`
	Topic    string        `envconfig:"MQTT_COMMAND_TOPIC"`
	Timeout  time.Duration `envconfig:"MQTT_PUBLISH_TIMEOUT" default:"5s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	CommandQueue string `envconfig:"SQS_COMMAND_QUEUE" validate:"omitempty,url"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ArchiveConfig names the optional JSON-lines archive every consumed sample is
// appended to. A .zst suffix selects compression.
type ArchiveConfig struct {
	Path string `envconfig:"ARCHIVE_PATH"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	EnableMetrics bool          `envconfig:"METRICS_ENABLED" default:"false"`
	FlushInterval time.Duration `envconfig:"METRICS_FLUSH_INTERVAL" default:"1m"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// or the equipment document into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
