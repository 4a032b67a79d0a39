package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "pipeline.retry_budget")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateTools()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateEngine() []ValidationError {
	var errors []ValidationError

	if c.Engine.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Engine.Addr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "engine.addr",
				Value:   c.Engine.Addr,
				Message: "must be a host:port address",
			})
		}
	}

	return errors
}

func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.RetryBudget < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.retry_budget",
			Value:   c.Pipeline.RetryBudget,
			Message: "must be at least 1",
		})
	}
	if c.Pipeline.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.retry_delay_seconds",
			Value:   c.Pipeline.RetryDelaySeconds,
			Message: "must not be negative",
		})
	}
	if c.Pipeline.InvokeTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.invoke_timeout_seconds",
			Value:   c.Pipeline.InvokeTimeoutSeconds,
			Message: "must be at least 1",
		})
	}
	if c.Pipeline.ProgressionWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.progression_workers",
			Value:   c.Pipeline.ProgressionWorkers,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	for field, endpoint := range map[string]string{
		"tools.capability_endpoint": c.Tools.CapabilityEndpoint,
		"tools.image_endpoint":      c.Tools.ImageEndpoint,
	} {
		if endpoint == "" {
			continue
		}
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   endpoint,
				Message: "must be an http:// or https:// URL",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
