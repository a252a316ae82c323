// Package config defines the configuration structure for the Occasions
// services. Configuration is loaded once at process start (Lambda cold start)
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format aborts startup.
package config

import (
	"time"

	"occasions/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for secret fields.
type SecretString = types.SecretString

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverDynamo   = "dynamodb"
	StoreDriverPostgres = "postgres"
)

// Config is the top-level configuration for every Occasions entrypoint.
// Components receive only the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"occasions"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	AWS           AWSConfig
	Store         StoreConfig
	Scheduler     SchedulerConfig
	Delivery      DeliveryConfig
	Observability ObservabilityConfig
	Security      SecurityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the API.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
}

// AWSConfig holds the region and the optional LocalStack endpoint shared by
// every AWS client.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Empty in deployed environments.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// StoreConfig selects and configures the subject record store.
type StoreConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"dynamodb" validate:"oneof=dynamodb postgres"`
	Table      string `envconfig:"SUBJECTS_TABLE" default:"subjects" validate:"required"`
	AutoCreate bool   `envconfig:"STORE_AUTO_CREATE" default:"false"`

	// Required when Driver is postgres.
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`

	MaxConns       int           `envconfig:"DB_MAX_CONNS" default:"5"`
	AcquireTimeout time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// SchedulerConfig configures the timer service that holds one pending
// schedule per subject.
type SchedulerConfig struct {
	// Disabled turns arm/disarm into logged no-ops for offline runs.
	Disabled  bool   `envconfig:"SCHEDULER_DISABLED" default:"false"`
	Group     string `envconfig:"SCHEDULER_GROUP" default:"default"`
	TargetARN string `envconfig:"SCHEDULER_TARGET_ARN" validate:"required_if=Disabled false"`
	RoleARN   string `envconfig:"SCHEDULER_ROLE_ARN" validate:"required_if=Disabled false"`

	// Queue URL of the firing target, used by the manual fire tool.
	FiringQueueURL string `envconfig:"FIRING_QUEUE_URL" validate:"omitempty,url"`
}

// DeliveryConfig configures the outbound notification endpoint.
type DeliveryConfig struct {
	URL       SecretString  `envconfig:"DELIVERY_URL"`
	Timeout   time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
	UserAgent string        `envconfig:"DELIVERY_USER_AGENT" default:"Occasions-Notifier/1.0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Occasions"`
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// SecurityConfig holds CORS settings for the API.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// IsLocal reports whether the process runs in local/offline mode.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
