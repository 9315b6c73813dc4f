package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const validConfigYAML = `
server:
  listen_address: "127.0.0.1:9090"
models:
  gpt-4:
    type: chat
    display_name: "GPT-4 (Adapter)"
    tokenizer_model: gpt-4
    endpoint: "http://localhost:9090/openai/deployments/gpt-4/chat/completions"
    forward_auth_token: true
    upstreams:
      - endpoint: "https://core.example.com/openai/deployments/gpt-4/chat/completions"
        key: remote-key
applications:
  local-app:
    endpoint: "http://localhost:9090/openai/deployments/local-app/chat/completions"
    input_attachment_types: ["*/*"]
keys:
  dial_api_key:
    project: TEST-PROJECT
    role: default
roles:
  default:
    limits:
      gpt-4: {}
      local-app: {}
`

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:9090" {
		t.Errorf("ListenAddress = %q, want %q", cfg.Server.ListenAddress, "127.0.0.1:9090")
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default %v", cfg.Server.ReadTimeout, DefaultReadTimeout)
	}
	if cfg.Relay.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want default %v", cfg.Relay.ConnectTimeout, DefaultConnectTimeout)
	}

	model, ok := cfg.Models["gpt-4"]
	if !ok {
		t.Fatal("model gpt-4 missing after load")
	}
	if model.Type != "chat" {
		t.Errorf("model type = %q, want %q", model.Type, "chat")
	}
	if !model.ForwardAuthToken {
		t.Error("model forward_auth_token = false, want true")
	}
	if len(model.Upstreams) != 1 {
		t.Fatalf("model upstreams = %d, want 1", len(model.Upstreams))
	}
	if model.Upstreams[0].Key != "remote-key" {
		t.Errorf("upstream key = %q, want %q", model.Upstreams[0].Key, "remote-key")
	}

	if key, ok := cfg.Keys["dial_api_key"]; !ok {
		t.Error("key dial_api_key missing after load")
	} else if key.Role != "default" {
		t.Errorf("key role = %q, want %q", key.Role, "default")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() expected error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "models: [not: a: mapping")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() expected error for invalid YAML")
	}
}

func TestLoadConfigDefaultTrueBooleans(t *testing.T) {
	// An absent field keeps the default; an explicit false disables.
	path := writeConfigFile(t, validConfigYAML)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want true by default")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true by default")
	}

	path = writeConfigFile(t, validConfigYAML+`
audit:
  enabled: false
telemetry:
  metrics:
    enabled: false
`)
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Audit.Enabled {
		t.Error("Audit.Enabled = true, want explicit false to win")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want explicit false to win")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)

	t.Setenv("GANYMEDE_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("GANYMEDE_RELAY_CONNECT_TIMEOUT", "3s")
	t.Setenv("GANYMEDE_TELEMETRY_LOGGING_LEVEL", "debug")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("ListenAddress = %q, want env override", cfg.Server.ListenAddress)
	}
	if cfg.Relay.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v, want 3s", cfg.Relay.ConnectTimeout)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantError string
	}{
		{
			name:   "valid configuration",
			mutate: func(cfg *Config) {},
		},
		{
			name: "key references unknown role",
			mutate: func(cfg *Config) {
				cfg.Keys["dial_api_key"] = KeyConfig{Project: "p", Role: "missing"}
			},
			wantError: "unknown role",
		},
		{
			name: "key with empty role",
			mutate: func(cfg *Config) {
				cfg.Keys["dial_api_key"] = KeyConfig{Project: "p"}
			},
			wantError: "role",
		},
		{
			name: "model with bad type",
			mutate: func(cfg *Config) {
				m := cfg.Models["gpt-4"]
				m.Type = "image"
				cfg.Models["gpt-4"] = m
			},
			wantError: "type",
		},
		{
			name: "upstream without endpoint",
			mutate: func(cfg *Config) {
				m := cfg.Models["gpt-4"]
				m.Upstreams = []UpstreamConfig{{Key: "k"}}
				cfg.Models["gpt-4"] = m
			},
			wantError: "endpoint",
		},
		{
			name: "upstream with relative endpoint",
			mutate: func(cfg *Config) {
				m := cfg.Models["gpt-4"]
				m.Upstreams = []UpstreamConfig{{Endpoint: "/openai/deployments/x", Key: "k"}}
				cfg.Models["gpt-4"] = m
			},
			wantError: "absolute URL",
		},
		{
			name: "deployment name shared by model and application",
			mutate: func(cfg *Config) {
				cfg.Applications["gpt-4"] = ApplicationConfig{
					Endpoint: "http://localhost/openai/deployments/gpt-4/chat/completions",
				}
			},
			wantError: "also declared as an application",
		},
		{
			name: "tls enabled without cert",
			mutate: func(cfg *Config) {
				cfg.Security.TLS.Enabled = true
				cfg.Security.TLS.KeyFile = "key.pem"
			},
			wantError: "cert_file",
		},
		{
			name: "tls with unsupported min version",
			mutate: func(cfg *Config) {
				cfg.Security.TLS.Enabled = true
				cfg.Security.TLS.CertFile = "cert.pem"
				cfg.Security.TLS.KeyFile = "key.pem"
				cfg.Security.TLS.MinVersion = "1.1"
			},
			wantError: "min_version",
		},
		{
			name: "bad logging level",
			mutate: func(cfg *Config) {
				cfg.Telemetry.Logging.Level = "verbose"
			},
			wantError: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantError)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys["dial_api_key"] = KeyConfig{Project: "p", Role: "missing"}
	m := cfg.Models["gpt-4"]
	m.Type = "image"
	cfg.Models["gpt-4"] = m

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	var vErr ValidationError
	ok := false
	if v, isV := err.(ValidationError); isV {
		vErr = v
		ok = true
	}
	if !ok {
		t.Fatalf("Validate() error type = %T, want ValidationError", err)
	}
	if len(vErr.Errors) < 2 {
		t.Errorf("ValidationError.Errors = %d, want at least 2", len(vErr.Errors))
	}
}

func TestValidateErrorRedactsKeySecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys["super-secret-key-value"] = KeyConfig{Project: "p", Role: "missing"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if strings.Contains(err.Error(), "super-secret-key-value") {
		t.Errorf("validation error leaks key secret: %v", err)
	}
}

// testConfig returns a loaded, valid configuration for mutation in tests.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := LoadConfig(writeConfigFile(t, validConfigYAML))
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}
	return cfg
}
