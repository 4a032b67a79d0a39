package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Engine.Addr != "localhost:9876" {
		t.Errorf("Engine.Addr = %q, want %q", cfg.Engine.Addr, "localhost:9876")
	}
	if cfg.Pipeline.RetryBudget != 3 {
		t.Errorf("Pipeline.RetryBudget = %d, want 3", cfg.Pipeline.RetryBudget)
	}
	if cfg.Pipeline.RetryDelay() != 2*time.Second {
		t.Errorf("Pipeline.RetryDelay() = %s, want 2s", cfg.Pipeline.RetryDelay())
	}
	if cfg.Pipeline.InvokeTimeout() != 120*time.Second {
		t.Errorf("Pipeline.InvokeTimeout() = %s, want 2m", cfg.Pipeline.InvokeTimeout())
	}
	if cfg.Pipeline.ProgressionWorkers != 3 {
		t.Errorf("Pipeline.ProgressionWorkers = %d, want 3", cfg.Pipeline.ProgressionWorkers)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("default config does not validate: %v", ValidationErrors(errs))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "bad engine addr",
			mutate:    func(c *Config) { c.Engine.Addr = "no-port" },
			wantField: "engine.addr",
		},
		{
			name:      "zero retry budget",
			mutate:    func(c *Config) { c.Pipeline.RetryBudget = 0 },
			wantField: "pipeline.retry_budget",
		},
		{
			name:      "negative retry delay",
			mutate:    func(c *Config) { c.Pipeline.RetryDelaySeconds = -1 },
			wantField: "pipeline.retry_delay_seconds",
		},
		{
			name:      "zero invoke timeout",
			mutate:    func(c *Config) { c.Pipeline.InvokeTimeoutSeconds = 0 },
			wantField: "pipeline.invoke_timeout_seconds",
		},
		{
			name:      "zero progression workers",
			mutate:    func(c *Config) { c.Pipeline.ProgressionWorkers = 0 },
			wantField: "pipeline.progression_workers",
		},
		{
			name:      "non-http capability endpoint",
			mutate:    func(c *Config) { c.Tools.CapabilityEndpoint = "ftp://backend" },
			wantField: "tools.capability_endpoint",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("Validate() returned no errors")
			}

			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q: %v", tt.wantField, ValidationErrors(errs))
			}
		})
	}
}

func TestValidateAcceptsEmptyEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Tools.CapabilityEndpoint = ""
	cfg.Tools.ImageEndpoint = ""

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("empty endpoints should validate: %v", ValidationErrors(errs))
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}

	msg := errs.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	if ValidationErrors(nil).Error() != "" {
		t.Error("nil errors should format to empty string")
	}
	if one := (ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}).Error(); one != "a: bad (got: 1)" {
		t.Errorf("single error = %q", one)
	}
}
