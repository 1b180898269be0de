// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load dotenv files via godotenv (the default .env is optional).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
//  6. Check settings that only matter together (a transport and its endpoint).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig and
// LoadEquipment to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the process configuration.
//
// With no arguments a .env file in the working directory is loaded when
// present. Explicitly named env files must exist. Dotenv values never
// override variables already set in the environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	time.Local = time.UTC

	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{
				Type:    ErrParsing,
				Message: "failed to load env file",
				Err:     err,
			}
		}
	}

	// The empty prefix means envconfig reads the exact tag values.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkDependencies(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkDependencies rejects a selected command transport with no endpoint.
func checkDependencies(cfg *Config) error {
	switch cfg.Commands.Transport {
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			return &ConfigError{Type: ErrMissingEnv, Message: "MQTT_BROKER is required when COMMAND_TRANSPORT=mqtt"}
		}
	case TransportSQS:
		if cfg.AWS.CommandQueue == "" {
			return &ConfigError{Type: ErrMissingEnv, Message: "SQS_COMMAND_QUEUE is required when COMMAND_TRANSPORT=sqs"}
		}
	}
	if cfg.Commands.MaxDelay < cfg.Commands.BaseDelay {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("COMMAND_RETRY_MAX_DELAY (%s) must not be below COMMAND_RETRY_BASE_DELAY (%s)", cfg.Commands.MaxDelay, cfg.Commands.BaseDelay),
		}
	}
	return nil
}
