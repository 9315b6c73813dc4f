package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "models.gpt-4.upstreams[0].endpoint").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together; no partial
// configuration is ever accepted.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRelay(&cfg.Relay)...)
	errs = append(errs, validateDeployments(cfg)...)
	errs = append(errs, validateKeys(cfg)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "must not be empty",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "must not be negative",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateRelay(cfg *RelayConfig) []FieldError {
	var errs []FieldError

	if cfg.ConnectTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "relay.connect_timeout",
			Message: "must be positive",
		})
	}
	if cfg.IdleChunkTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "relay.idle_chunk_timeout",
			Message: "must not be negative (zero disables the idle deadline)",
		})
	}

	return errs
}

// validateDeployments checks the model and application catalogs. Deployment
// names share a single namespace: a model and an application may not use the
// same name.
func validateDeployments(cfg *Config) []FieldError {
	var errs []FieldError

	for name, model := range cfg.Models {
		field := fmt.Sprintf("models.%s", name)

		if name == "" {
			errs = append(errs, FieldError{
				Field:   "models",
				Message: "deployment name must not be empty",
			})
			continue
		}
		if model.Type != "chat" && model.Type != "embedding" {
			errs = append(errs, FieldError{
				Field:   field + ".type",
				Message: fmt.Sprintf("must be %q or %q, got %q", "chat", "embedding", model.Type),
			})
		}
		if _, dup := cfg.Applications[name]; dup {
			errs = append(errs, FieldError{
				Field:   field,
				Message: "deployment name is also declared as an application",
			})
		}
		errs = append(errs, validateUpstreams(field, model.Upstreams)...)
	}

	for name, app := range cfg.Applications {
		field := fmt.Sprintf("applications.%s", name)

		if name == "" {
			errs = append(errs, FieldError{
				Field:   "applications",
				Message: "deployment name must not be empty",
			})
			continue
		}
		errs = append(errs, validateUpstreams(field, app.Upstreams)...)
	}

	return errs
}

func validateUpstreams(field string, upstreams []UpstreamConfig) []FieldError {
	var errs []FieldError

	for i, up := range upstreams {
		upField := fmt.Sprintf("%s.upstreams[%d]", field, i)

		if up.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   upField + ".endpoint",
				Message: "must not be empty",
			})
			continue
		}
		u, err := url.Parse(up.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   upField + ".endpoint",
				Message: fmt.Sprintf("must be an absolute URL, got %q", up.Endpoint),
			})
		}
	}

	return errs
}

// validateKeys checks inbound key records. Every key must reference an
// existing role; role limit entries are allowed to reference deployments
// that do not exist (resolution denies those at request time).
func validateKeys(cfg *Config) []FieldError {
	var errs []FieldError

	for secret, key := range cfg.Keys {
		field := fmt.Sprintf("keys.%s", redactSecret(secret))

		if secret == "" {
			errs = append(errs, FieldError{
				Field:   "keys",
				Message: "key secret must not be empty",
			})
			continue
		}
		if key.Role == "" {
			errs = append(errs, FieldError{
				Field:   field + ".role",
				Message: "must not be empty",
			})
			continue
		}
		if _, ok := cfg.Roles[key.Role]; !ok {
			errs = append(errs, FieldError{
				Field:   field + ".role",
				Message: fmt.Sprintf("references unknown role %q", key.Role),
			})
		}
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if cfg.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "audit.sqlite_path",
			Message: "must not be empty when audit is enabled",
		})
	}
	if cfg.Buffer <= 0 {
		errs = append(errs, FieldError{
			Field:   "audit.buffer",
			Message: "must be positive",
		})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.days",
			Message: "must not be negative",
		})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{
			Field:   "audit.retention.max_records",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of json, text, console; got %q", cfg.Logging.Format),
		})
	}

	return errs
}

func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "must not be empty when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "must not be empty when TLS is enabled",
			})
		}
		if cfg.TLS.MinVersion != "" && cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "security.tls.min_version",
				Message: fmt.Sprintf("must be one of 1.2, 1.3; got %q", cfg.TLS.MinVersion),
			})
		}
	}

	return errs
}

// redactSecret shortens a key secret for inclusion in error messages so
// validation output never contains a full credential.
func redactSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
