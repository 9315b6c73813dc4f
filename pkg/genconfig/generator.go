package genconfig

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/config"
)

// Options controls configuration generation.
type Options struct {
	// RemoteURL is the base URL of the remote Core whose catalog is
	// mirrored.
	RemoteURL string

	// RemoteKey is the credential for the remote Core's catalog and the
	// upstream key written into every generated deployment.
	RemoteKey string

	// LocalURL is the base URL this gateway will be reachable at; it is
	// used for the advertised local endpoints.
	LocalURL string

	// DeploymentRegex optionally filters remote deployment IDs. Matching
	// is case-insensitive and unanchored.
	DeploymentRegex string

	// LocalAppURL optionally injects a locally hosted application with
	// the given chat completions endpoint.
	LocalAppURL string

	// Client overrides the HTTP client, for tests.
	Client *http.Client

	// Logger receives progress output. Nil discards it.
	Logger *slog.Logger
}

// Generate fetches the remote Core's models and applications, mirrors the
// relayable ones as deployments of this gateway, and writes the resulting
// configuration as YAML to w.
//
// Remote applications are emitted as models too: only models carry an
// upstreams list. The local deployment name is "<remote id>-adapter" to
// make plain that local and remote IDs need not coincide.
func Generate(ctx context.Context, opts Options, w io.Writer) error {
	if opts.RemoteURL == "" {
		return fmt.Errorf("remote URL is required")
	}
	if opts.RemoteKey == "" {
		return fmt.Errorf("remote key is required")
	}
	if opts.LocalURL == "" {
		opts.LocalURL = "http://localhost:8080"
	}

	var filter *regexp.Regexp
	if opts.DeploymentRegex != "" {
		var err error
		filter, err = regexp.Compile("(?i)" + opts.DeploymentRegex)
		if err != nil {
			return fmt.Errorf("invalid deployment regex: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := opts.Client
	if client == nil {
		client = newCatalogClient()
	}

	cfg := &config.Config{
		Models: map[string]config.ModelConfig{},
		Keys: map[string]config.KeyConfig{
			"dial_api_key": {Project: "TEST-PROJECT", Role: "default"},
		},
		Roles: map[string]config.RoleConfig{
			"default": {Limits: map[string]config.LimitDescriptor{}},
		},
	}

	for _, kind := range []string{"models", "applications"} {
		entries, err := fetchCatalog(ctx, client, opts.RemoteURL, opts.RemoteKey, kind)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if !entry.relayable() {
				continue
			}
			if filter != nil && !filter.MatchString(entry.ID) {
				continue
			}
			name, model := buildModel(&entry, opts)
			cfg.Models[name] = model
			cfg.Roles["default"].Limits[name] = config.LimitDescriptor{}
			logger.Info("mirrored deployment",
				"kind", kind,
				"remote_id", entry.ID,
				"name", name,
				"type", model.Type)
		}
	}

	if opts.LocalAppURL != "" {
		cfg.Applications = map[string]config.ApplicationConfig{
			"local-application": {
				DisplayName:          "Locally hosted application",
				Endpoint:             opts.LocalAppURL,
				ForwardAuthToken:     true,
				InputAttachmentTypes: []string{"*/*"},
				Features: config.FeaturesConfig{
					URLAttachmentsSupported:    true,
					FolderAttachmentsSupported: true,
				},
			},
		}
		cfg.Roles["default"].Limits["local-application"] = config.LimitDescriptor{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return encoder.Close()
}

// buildModel converts one remote catalog entry into a local deployment.
func buildModel(entry *catalogEntry, opts Options) (string, config.ModelConfig) {
	modelType := "embedding"
	operation := "embeddings"
	if entry.chatCapable() {
		modelType = "chat"
		operation = "chat/completions"
	}

	name := entry.ID + "-adapter"
	localBase := fmt.Sprintf("%s/openai/deployments/%s", opts.LocalURL, name)

	displayName := entry.DisplayName
	if displayName != "" {
		displayName += " (Adapter)"
	}

	f := config.FeaturesConfig{
		SystemPromptSupported:      entry.Features.SystemPrompt,
		ToolsSupported:             entry.Features.Tools,
		SeedSupported:              entry.Features.Seed,
		URLAttachmentsSupported:    entry.Features.URLAttachments,
		FolderAttachmentsSupported: entry.Features.FolderAttachments,
	}
	if entry.Features.Rate {
		f.RateEndpoint = localBase + "/rate"
	}
	if entry.Features.Tokenize {
		f.TokenizeEndpoint = localBase + "/tokenize"
	}
	if entry.Features.TruncatePrompt {
		f.TruncatePromptEndpoint = localBase + "/truncate_prompt"
	}
	if entry.Features.Configuration {
		f.ConfigurationEndpoint = localBase + "/configuration"
	}

	return name, config.ModelConfig{
		Type:             modelType,
		DisplayName:      displayName,
		DisplayVersion:   entry.DisplayVersion,
		Description:      entry.Description,
		IconURL:          entry.IconURL,
		TokenizerModel:   entry.TokenizerModel,
		Endpoint:         fmt.Sprintf("%s/%s", localBase, operation),
		ForwardAuthToken: true,
		Upstreams: []config.UpstreamConfig{{
			Endpoint: fmt.Sprintf("%s/openai/deployments/%s/%s", opts.RemoteURL, entry.ID, operation),
			Key:      opts.RemoteKey,
		}},
		InputAttachmentTypes: entry.InputAttachmentTypes,
		MaxInputAttachments:  entry.MaxInputAttachments,
		Features:             f,
		Limits:               entry.Limits,
		Pricing:              entry.Pricing,
	}
}
