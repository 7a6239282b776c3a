// env_config.go: Environment Variables Support for Themis Configuration
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// EnvConfig represents Instance configuration loaded from environment
// variables, for cmd/paramd and other container-style deployments.
type EnvConfig struct {
	DatabasePath string `env:"THEMIS_DATABASE_PATH"`

	MulticastGroup string `env:"THEMIS_MULTICAST_GROUP"`
	MulticastPort  int    `env:"THEMIS_MULTICAST_PORT"`
	PollInterval   time.Duration `env:"THEMIS_POLL_INTERVAL"`

	OptimizationStrategy string `env:"THEMIS_OPTIMIZATION_STRATEGY"`
	RingCapacity         int64  `env:"THEMIS_RING_CAPACITY"`

	AuditEnabled       bool          `env:"THEMIS_AUDIT_ENABLED"`
	AuditOutputFile    string        `env:"THEMIS_AUDIT_OUTPUT_FILE"`
	AuditMinLevel      string        `env:"THEMIS_AUDIT_MIN_LEVEL"`
	AuditBufferSize    int           `env:"THEMIS_AUDIT_BUFFER_SIZE"`
	AuditFlushInterval time.Duration `env:"THEMIS_AUDIT_FLUSH_INTERVAL"`

	RPCBindAddress string `env:"THEMIS_RPC_BIND_ADDRESS"`
}

// LoadConfigFromEnv loads Config from environment variables. Descriptors
// is never set from the environment -- it always comes from the
// application's compiled schema package, supplied by the caller after
// this returns.
func LoadConfigFromEnv() (*Config, error) {
	env := &EnvConfig{}
	if err := loadEnvVars(env); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}

	config := &Config{}
	convertCoreConfig(env, config)
	if err := convertPerformanceConfig(env, config); err != nil {
		return nil, err
	}
	if err := convertAuditConfig(env, config); err != nil {
		return nil, err
	}

	return config.WithDefaults(), nil
}

func loadEnvVars(env *EnvConfig) error {
	env.DatabasePath = os.Getenv("THEMIS_DATABASE_PATH")
	env.MulticastGroup = os.Getenv("THEMIS_MULTICAST_GROUP")
	env.RPCBindAddress = os.Getenv("THEMIS_RPC_BIND_ADDRESS")

	if portStr := os.Getenv("THEMIS_MULTICAST_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return errors.New(ErrCodeInvalidConfig, "invalid THEMIS_MULTICAST_PORT value")
		}
		env.MulticastPort = port
	}

	if pollStr := os.Getenv("THEMIS_POLL_INTERVAL"); pollStr != "" {
		d, err := time.ParseDuration(pollStr)
		if err != nil {
			return errors.New(ErrCodeInvalidConfig, "invalid THEMIS_POLL_INTERVAL format")
		}
		env.PollInterval = d
	}

	env.OptimizationStrategy = os.Getenv("THEMIS_OPTIMIZATION_STRATEGY")
	if capStr := os.Getenv("THEMIS_RING_CAPACITY"); capStr != "" {
		capacity, err := strconv.ParseInt(capStr, 10, 64)
		if err != nil || capacity <= 0 {
			return errors.New(ErrCodeInvalidConfig, "invalid THEMIS_RING_CAPACITY value")
		}
		env.RingCapacity = capacity
	}

	if auditStr := os.Getenv("THEMIS_AUDIT_ENABLED"); auditStr != "" {
		env.AuditEnabled = parseBool(auditStr)
	}
	env.AuditOutputFile = os.Getenv("THEMIS_AUDIT_OUTPUT_FILE")
	env.AuditMinLevel = os.Getenv("THEMIS_AUDIT_MIN_LEVEL")
	if bufStr := os.Getenv("THEMIS_AUDIT_BUFFER_SIZE"); bufStr != "" {
		if buf, err := strconv.Atoi(bufStr); err == nil && buf > 0 {
			env.AuditBufferSize = buf
		}
	}
	if flushStr := os.Getenv("THEMIS_AUDIT_FLUSH_INTERVAL"); flushStr != "" {
		if d, err := time.ParseDuration(flushStr); err == nil {
			env.AuditFlushInterval = d
		}
	}

	return nil
}

func convertCoreConfig(env *EnvConfig, config *Config) {
	config.DatabasePath = env.DatabasePath
	config.MulticastGroup = env.MulticastGroup
	config.RPCBindAddress = env.RPCBindAddress
	if env.MulticastPort != 0 {
		config.MulticastPort = env.MulticastPort
	}
	if env.PollInterval != 0 {
		config.PollInterval = env.PollInterval
	}
}

func convertPerformanceConfig(env *EnvConfig, config *Config) error {
	if env.OptimizationStrategy != "" {
		switch strings.ToLower(env.OptimizationStrategy) {
		case "auto":
			config.OptimizationStrategy = OptimizationAuto
		case "single", "singleevent":
			config.OptimizationStrategy = OptimizationSingleEvent
		case "small", "smallbatch":
			config.OptimizationStrategy = OptimizationSmallBatch
		case "large", "largebatch":
			config.OptimizationStrategy = OptimizationLargeBatch
		default:
			return errors.New(ErrCodeInvalidConfig, "invalid optimization strategy")
		}
	}
	if env.RingCapacity > 0 {
		config.RingCapacity = env.RingCapacity
	}
	return nil
}

func convertAuditConfig(env *EnvConfig, config *Config) error {
	if env.AuditEnabled || env.AuditOutputFile != "" {
		config.Audit.Enabled = env.AuditEnabled
		if env.AuditOutputFile != "" {
			config.Audit.OutputFile = env.AuditOutputFile
		}
		if env.AuditMinLevel != "" {
			level, err := parseAuditLevel(env.AuditMinLevel)
			if err != nil {
				return err
			}
			config.Audit.MinLevel = level
		}
		if env.AuditBufferSize > 0 {
			config.Audit.BufferSize = env.AuditBufferSize
		}
		if env.AuditFlushInterval > 0 {
			config.Audit.FlushInterval = env.AuditFlushInterval
		}
	}
	return nil
}

func parseAuditLevel(levelStr string) (AuditLevel, error) {
	switch strings.ToLower(levelStr) {
	case "info":
		return AuditInfo, nil
	case "warn", "warning":
		return AuditWarn, nil
	case "critical", "error":
		return AuditCritical, nil
	case "security":
		return AuditSecurity, nil
	default:
		return AuditInfo, errors.New(ErrCodeInvalidConfig, "invalid audit level")
	}
}

// parseBool parses boolean values from environment variables.
// Supports: true/false, 1/0, yes/no, on/off, enabled/disabled
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		return false
	}
}

// GetEnvWithDefault returns environment variable value or default if not set
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDurationWithDefault returns environment variable as duration or default
func GetEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvIntWithDefault returns environment variable as int or default
func GetEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvBoolWithDefault returns environment variable as bool or default
func GetEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value)
	}
	return defaultValue
}
