package genconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// listing is the remote Core's deployment catalog response.
type listing struct {
	Data   []catalogEntry `json:"data"`
	Object string         `json:"object"`
}

// catalogEntry is one model or application as the remote Core lists it.
type catalogEntry struct {
	ID                   string         `json:"id"`
	DisplayName          string         `json:"display_name"`
	DisplayVersion       string         `json:"display_version"`
	Description          string         `json:"description"`
	IconURL              string         `json:"icon_url"`
	TokenizerModel       string         `json:"tokenizer_model"`
	Capabilities         *capabilities  `json:"capabilities"`
	Features             features       `json:"features"`
	Limits               map[string]any `json:"limits"`
	Pricing              map[string]any `json:"pricing"`
	InputAttachmentTypes []string       `json:"input_attachment_types"`
	MaxInputAttachments  int            `json:"max_input_attachments"`
}

type capabilities struct {
	ChatCompletion bool `json:"chat_completion"`
	Embeddings     bool `json:"embeddings"`
}

type features struct {
	Rate              bool `json:"rate"`
	Tokenize          bool `json:"tokenize"`
	TruncatePrompt    bool `json:"truncate_prompt"`
	Configuration     bool `json:"configuration"`
	SystemPrompt      bool `json:"system_prompt"`
	Tools             bool `json:"tools"`
	Seed              bool `json:"seed"`
	URLAttachments    bool `json:"url_attachments"`
	FolderAttachments bool `json:"folder_attachments"`
}

// chatCapable reports whether the entry serves chat completions. Entries
// without a capabilities block are chat models; the remote only reports
// capabilities for models.
func (e *catalogEntry) chatCapable() bool {
	return e.Capabilities == nil || e.Capabilities.ChatCompletion
}

// relayable reports whether the entry serves an operation this gateway can
// relay.
func (e *catalogEntry) relayable() bool {
	return e.Capabilities == nil || e.Capabilities.ChatCompletion || e.Capabilities.Embeddings
}

// fetchCatalog retrieves one catalog listing ("models" or "applications")
// from the remote Core.
func fetchCatalog(ctx context.Context, client *http.Client, remoteURL, remoteKey, kind string) ([]catalogEntry, error) {
	url := fmt.Sprintf("%s/openai/%s", remoteURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", remoteKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s from %s: %w", kind, remoteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing %s: remote returned status %d: %s", kind, resp.StatusCode, body)
	}

	var parsed listing
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s listing: %w", kind, err)
	}
	return parsed.Data, nil
}

// newCatalogClient builds the HTTP client used for catalog fetches.
func newCatalogClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
