// config_validation.go - professional-grade configuration validation for Themis
//
// This module provides comprehensive validation for Instance configuration,
// ensuring safe and reliable operation in production environments with
// detailed error reporting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"
)

// Validation errors for Config fields.
var (
	ErrInvalidDatabasePath  = errors.New(ErrCodeInvalidConfig, "database path must not be empty")
	ErrNoDescriptors        = errors.New(ErrCodeInvalidConfig, "at least one parameter descriptor is required")
	ErrInvalidPollInterval  = errors.New(ErrCodeInvalidConfig, "poll interval must be positive")
	ErrInvalidOptimization  = errors.New(ErrCodeInvalidConfig, "unknown optimization strategy")
	ErrInvalidRingCapacity  = errors.New(ErrCodeInvalidConfig, "ring capacity must be a power of 2")
	ErrInvalidMulticastPort = errors.New(ErrCodeInvalidConfig, "multicast port must be between 1 and 65535")
	ErrInvalidBufferSize    = errors.New(ErrCodeInvalidConfig, "audit buffer size must be positive")
	ErrInvalidFlushInterval = errors.New(ErrCodeInvalidConfig, "audit flush interval must be positive")
	ErrInvalidOutputFile    = errors.New(ErrCodeInvalidConfig, "audit output file path is invalid")
	ErrPollIntervalTooSmall = errors.New(ErrCodeInvalidConfig, "poll interval should be at least 10ms for stability")
)

// ValidationResult contains the result of configuration validation with detailed feedback.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// String returns a human-readable representation of validation results
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

// Validate performs comprehensive validation of the instance configuration.
// Returns the first error found; use ValidateDetailed for the full report.
func (c *Config) Validate() error {
	result := c.ValidateDetailed()
	if !result.Valid && len(result.Errors) > 0 {
		return errors.New(ErrCodeInvalidConfig, result.Errors[0])
	}
	return nil
}

// ValidateDetailed performs comprehensive validation and returns detailed results
// including both errors and warnings.
func (c *Config) ValidateDetailed() ValidationResult {
	result := ValidationResult{Valid: true, Errors: make([]string, 0), Warnings: make([]string, 0)}

	c.validateCoreConfig(&result)
	c.validateOptimizationStrategy(&result)
	c.validateRingCapacity(&result)
	c.validateMulticast(&result)
	c.validateAuditConfig(&result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateCoreConfig(result *ValidationResult) {
	if c.DatabasePath == "" {
		result.Errors = append(result.Errors, ErrInvalidDatabasePath.Error())
	}
	if len(c.Descriptors) == 0 {
		result.Errors = append(result.Errors, ErrNoDescriptors.Error())
	}

	if c.PollInterval <= 0 {
		result.Errors = append(result.Errors, ErrInvalidPollInterval.Error())
	} else if c.PollInterval < 10*time.Millisecond {
		result.Errors = append(result.Errors, ErrPollIntervalTooSmall.Error())
	}
}

func (c *Config) validateOptimizationStrategy(result *ValidationResult) {
	switch c.OptimizationStrategy {
	case OptimizationSingleEvent, OptimizationSmallBatch, OptimizationLargeBatch, OptimizationAuto:
	default:
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s: '%v'", ErrInvalidOptimization.Error(), c.OptimizationStrategy))
	}
}

func (c *Config) validateRingCapacity(result *ValidationResult) {
	if c.RingCapacity > 0 {
		if c.RingCapacity&(c.RingCapacity-1) != 0 {
			result.Errors = append(result.Errors, ErrInvalidRingCapacity.Error())
		}
		if c.RingCapacity > 1024 {
			result.Warnings = append(result.Warnings, "large ring capacity may consume significant memory")
		}
	}
}

func (c *Config) validateMulticast(result *ValidationResult) {
	if c.MulticastGroup == "" {
		result.Warnings = append(result.Warnings,
			"multicast disabled: this instance will not learn of parameter changes made by other processes")
		return
	}
	if c.MulticastPort <= 0 || c.MulticastPort > 65535 {
		result.Errors = append(result.Errors, ErrInvalidMulticastPort.Error())
	}
}

func (c *Config) validateAuditConfig(result *ValidationResult) {
	if !c.Audit.Enabled {
		return
	}
	if c.Audit.BufferSize < 0 {
		result.Errors = append(result.Errors, ErrInvalidBufferSize.Error())
	} else if c.Audit.BufferSize == 0 {
		result.Warnings = append(result.Warnings, "audit buffer size is 0, consider 100-1000 for better performance")
	}
	if c.Audit.FlushInterval < 0 {
		result.Errors = append(result.Errors, ErrInvalidFlushInterval.Error())
	}
	if c.Audit.OutputFile != "" {
		if err := validateOutputFile(c.Audit.OutputFile); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
}

// validateOutputFile checks if the audit output file path's parent directory
// exists, without requiring the file itself to exist yet.
func validateOutputFile(outputFile string) error {
	cleanPath := filepath.Clean(outputFile)
	if cleanPath == "." || cleanPath == "/" {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("path '%s' is not a valid file path", outputFile))
	}

	dir := filepath.Dir(cleanPath)
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("directory '%s' does not exist", dir))
		}
		return errors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("cannot access directory '%s'", dir))
	}
	if !info.IsDir() {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("'%s' is not a directory", dir))
	}
	return nil
}

// ValidateEnvironmentConfig validates configuration loaded from environment
// variables, without constructing an Instance.
func ValidateEnvironmentConfig() error {
	config, err := LoadConfigFromEnv()
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to load config from environment")
	}
	return config.Validate()
}

// GetValidationErrorCode extracts the go-errors code from a validation error.
func GetValidationErrorCode(err error) string {
	return ErrorCode(err)
}

// IsValidationError reports whether err originated from Config validation.
func IsValidationError(err error) bool {
	return ErrorCode(err) == ErrCodeInvalidConfig
}
