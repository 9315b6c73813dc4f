package config

import "time"

// Config is the root configuration structure for Ganymede.
// It contains the declarative deployment catalog (models and applications),
// the inbound key and role records, and the operational sections for the
// HTTP server, the relay engine, auditing, telemetry, and security.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and connection limits.
	Server ServerConfig `yaml:"server"`

	// Relay contains configuration for the upstream relay engine including
	// per-candidate deadlines and connection pooling.
	Relay RelayConfig `yaml:"relay"`

	// Models contains chat and embedding model deployments keyed by
	// deployment name.
	Models map[string]ModelConfig `yaml:"models"`

	// Applications contains application deployments keyed by deployment name.
	Applications map[string]ApplicationConfig `yaml:"applications"`

	// Keys contains inbound API key records keyed by the key secret.
	Keys map[string]KeyConfig `yaml:"keys"`

	// Roles contains permission roles keyed by role name.
	Roles map[string]RoleConfig `yaml:"roles"`

	// Audit contains configuration for request record storage and retention.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains observability configuration (logging and metrics).
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Security contains TLS and secret resolution configuration.
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streamed completions are open-ended, so the default leaves
	// this disabled.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of inbound request bodies.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Api-Key", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`
}

// RelayConfig contains configuration for the upstream relay engine.
type RelayConfig struct {
	// ConnectTimeout is the per-candidate deadline covering connection
	// establishment through receipt of the upstream response headers.
	// A candidate that misses this deadline is skipped in favor of the
	// next one in configuration order.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleChunkTimeout is the maximum time to wait between response chunks
	// once a candidate has begun delivering. Elapsing terminates the
	// client-facing stream; it never triggers failover.
	// Default: 60s
	IdleChunkTimeout time.Duration `yaml:"idle_chunk_timeout"`

	// MaxIdleConns is the connection pool size shared across upstreams.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost caps pooled connections per upstream host.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long pooled connections are kept open.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// UpstreamConfig is a single (endpoint, credential) relay target.
type UpstreamConfig struct {
	// Endpoint is the complete upstream operation URL, e.g.
	// "https://core.example.com/openai/deployments/gpt-4/chat/completions".
	Endpoint string `yaml:"endpoint"`

	// Key is the credential presented to the upstream in the Api-Key header.
	// It may be a literal value or a secret reference understood by the
	// secrets manager ("env:NAME" or "file:NAME").
	Key string `yaml:"key"`
}

// ModelConfig describes a chat or embedding model deployment.
type ModelConfig struct {
	// Type is the model kind: "chat" or "embedding".
	// Default: "chat"
	Type string `yaml:"type"`

	// DisplayName is the human-readable model name shown to callers.
	DisplayName string `yaml:"display_name"`

	// DisplayVersion is the human-readable model version.
	DisplayVersion string `yaml:"display_version"`

	// Description is an optional free-form model description.
	Description string `yaml:"description"`

	// IconURL is an optional URL for the model icon.
	IconURL string `yaml:"icon_url"`

	// TokenizerModel names the tokenizer callers should use for this model.
	TokenizerModel string `yaml:"tokenizer_model"`

	// Endpoint is the address the deployment is served at locally.
	// Informational; the server derives its own routes from deployment names.
	Endpoint string `yaml:"endpoint"`

	// ForwardAuthToken controls whether the caller's original Authorization
	// header is passed through to the upstream in addition to the upstream's
	// own credential.
	ForwardAuthToken bool `yaml:"forward_auth_token"`

	// Upstreams is the ordered list of relay targets. The first entry is
	// primary; later entries are fallbacks tried only before a response has
	// begun. An empty list marks the deployment as locally served.
	Upstreams []UpstreamConfig `yaml:"upstreams"`

	// InputAttachmentTypes lists accepted attachment MIME types.
	InputAttachmentTypes []string `yaml:"input_attachment_types"`

	// MaxInputAttachments caps the number of attachments per request.
	// Zero means unlimited.
	MaxInputAttachments int `yaml:"max_input_attachments"`

	// Features describes optional capabilities of the deployment.
	Features FeaturesConfig `yaml:"features"`

	// Limits carries opaque per-model token limit metadata. Ganymede does
	// not enforce these; they are passed through for display.
	Limits map[string]any `yaml:"limits"`

	// Pricing carries opaque pricing metadata, passed through for display.
	Pricing map[string]any `yaml:"pricing"`
}

// ApplicationConfig describes an application deployment.
type ApplicationConfig struct {
	// DisplayName is the human-readable application name.
	DisplayName string `yaml:"display_name"`

	// Endpoint is the address the application is served at locally.
	Endpoint string `yaml:"endpoint"`

	// ForwardAuthToken controls whether the caller's original Authorization
	// header is passed through to the upstream in addition to the upstream's
	// own credential.
	ForwardAuthToken bool `yaml:"forward_auth_token"`

	// Upstreams is the ordered list of relay targets; empty means the
	// application is locally served and not relayed by Ganymede.
	Upstreams []UpstreamConfig `yaml:"upstreams"`

	// InputAttachmentTypes lists accepted attachment MIME types.
	InputAttachmentTypes []string `yaml:"input_attachment_types"`

	// Features describes optional capabilities of the deployment.
	Features FeaturesConfig `yaml:"features"`
}

// FeaturesConfig describes optional deployment capabilities. Endpoint fields
// are advertised as-is; boolean flags gate caller-visible behavior.
type FeaturesConfig struct {
	RateEndpoint               string `yaml:"rate_endpoint"`
	TokenizeEndpoint           string `yaml:"tokenize_endpoint"`
	TruncatePromptEndpoint     string `yaml:"truncate_prompt_endpoint"`
	ConfigurationEndpoint      string `yaml:"configuration_endpoint"`
	SystemPromptSupported      bool   `yaml:"system_prompt_supported"`
	ToolsSupported             bool   `yaml:"tools_supported"`
	SeedSupported              bool   `yaml:"seed_supported"`
	URLAttachmentsSupported    bool   `yaml:"url_attachments_supported"`
	FolderAttachmentsSupported bool   `yaml:"folder_attachments_supported"`
}

// KeyConfig is an inbound API key record.
type KeyConfig struct {
	// Project is the project label attached to requests made with this key.
	Project string `yaml:"project"`

	// Role names the permission role for this key. The role must exist.
	Role string `yaml:"role"`
}

// RoleConfig is a named permission set.
type RoleConfig struct {
	// Limits maps deployment names to limit descriptors. Presence of an
	// entry grants access to that deployment; the descriptor contents are
	// opaque to Ganymede. Entries may reference deployments that do not
	// exist in this configuration.
	Limits map[string]LimitDescriptor `yaml:"limits"`
}

// LimitDescriptor is an opaque per-deployment limit record. Only the
// presence of the enclosing map entry is meaningful to authorization.
type LimitDescriptor map[string]any

// AuditConfig contains configuration for request record storage.
type AuditConfig struct {
	// Enabled controls whether proxied requests are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// SQLitePath is the path to the audit SQLite database file.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Buffer is the size of the asynchronous write buffer. Records are
	// dropped (and counted) rather than blocking request handling when the
	// buffer is full.
	// Default: 1000
	Buffer int `yaml:"buffer"`

	// Retention contains pruning configuration for stored records.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls pruning of stored audit records.
type RetentionConfig struct {
	// Days is the number of days to retain records. Zero disables
	// age-based pruning.
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords caps the total number of stored records. Zero disables
	// count-based pruning.
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is a cron expression for automatic pruning. Empty disables
	// the scheduler.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json", "text", or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// SecurityConfig contains TLS and secret resolution configuration.
type SecurityConfig struct {
	// TLS contains TLS listener configuration.
	TLS TLSConfig `yaml:"tls"`

	// Secrets contains secret reference resolution configuration.
	Secrets SecretsConfig `yaml:"secrets"`
}

// TLSConfig contains TLS listener configuration.
type TLSConfig struct {
	// Enabled controls whether the server terminates TLS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM certificate file.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM private key file.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the minimum TLS version to accept: "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes, so renewed certificates take effect without a restart.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"cert_reload_interval"`
}

// SecretsConfig configures resolution of secret references in upstream
// credentials.
type SecretsConfig struct {
	// File is the path to a YAML file of secret name/value pairs used by
	// "file:" references. Empty disables the file provider.
	File string `yaml:"file"`

	// Watch reloads the secrets file when it changes on disk, so rotated
	// upstream credentials take effect without a restart. The deployment
	// catalog itself always requires a restart to reload.
	// Default: true when File is set
	Watch *bool `yaml:"watch"`
}
