package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL     string `yaml:"database_url" validate:"required"`
	TemporalAddress string `yaml:"temporal_address" validate:"required"`
	HTTPListenAddr  string `yaml:"http_listen_addr"`
	MetricsAddr     string `yaml:"metrics_addr"`
	LogLevel        string `yaml:"log_level"`
	ServiceName     string `yaml:"service_name"`

	// SyncCronSchedule is the cron expression used for per-infra-mapping
	// perpetual sync workflows.
	SyncCronSchedule string `yaml:"sync_cron_schedule"`

	// InstanceRetention is how long soft-deleted instances are kept before
	// the purge job hard-deletes them.
	InstanceRetention time.Duration `yaml:"instance_retention"`

	// SyncFailureGrace is how long an infra mapping may fail to sync before
	// its instances are purged as unreachable.
	SyncFailureGrace time.Duration `yaml:"sync_failure_grace"`

	// PurgeCronSchedule is the cron expression for the retention purge job.
	PurgeCronSchedule string `yaml:"purge_cron_schedule"`

	// AWSRegion is the default region for AWS provider clients when an infra
	// mapping does not carry one. An explicit key pair overrides the default
	// credential chain.
	AWSRegion          string `yaml:"aws_region"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`

	// Azure.
	AzureSubscriptionID string `yaml:"azure_subscription_id"`

	// Cloud Foundry.
	PCFAPIURL       string `yaml:"pcf_api_url"`
	PCFClientID     string `yaml:"pcf_client_id"`
	PCFClientSecret string `yaml:"pcf_client_secret"`

	// Spotinst.
	SpotinstToken   string `yaml:"spotinst_token"`
	SpotinstAccount string `yaml:"spotinst_account"`

	// SSH probing of fixed-host mappings.
	SSHUser    string `yaml:"ssh_user"`
	SSHKeyPath string `yaml:"ssh_key_path"`
}

var validate = validator.New()

// Load builds the config from environment variables, optionally overlaid by
// a YAML file pointed at by DEPLOYTRACK_CONFIG.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", "deploytrack"),
		SyncCronSchedule:  getEnv("SYNC_CRON_SCHEDULE", "*/10 * * * *"),
		InstanceRetention: getEnvDuration("INSTANCE_RETENTION", 7*24*time.Hour),
		SyncFailureGrace:  getEnvDuration("SYNC_FAILURE_GRACE", 7*24*time.Hour),
		PurgeCronSchedule: getEnv("PURGE_CRON_SCHEDULE", "0 3 * * *"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),

		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		AzureSubscriptionID: getEnv("AZURE_SUBSCRIPTION_ID", ""),
		PCFAPIURL:           getEnv("PCF_API_URL", ""),
		PCFClientID:         getEnv("PCF_CLIENT_ID", ""),
		PCFClientSecret:     getEnv("PCF_CLIENT_SECRET", ""),
		SpotinstToken:       getEnv("SPOTINST_TOKEN", ""),
		SpotinstAccount:     getEnv("SPOTINST_ACCOUNT", ""),
		SSHUser:             getEnv("SSH_USER", ""),
		SSHKeyPath:          getEnv("SSH_KEY_PATH", ""),
	}

	if path := os.Getenv("DEPLOYTRACK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks that the fields required by the given command are set.
func (c *Config) Validate(command string) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	switch command {
	case "worker", "tracker-api":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for %s", command)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are treated as hours.
	if h, err := strconv.Atoi(v); err == nil {
		return time.Duration(h) * time.Hour
	}
	return fallback
}
