package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileProvider resolves "file:NAME" references from a YAML file of flat
// name/value pairs. The file is parsed once and served from memory; with
// watching enabled the cache is re-read when the file changes on disk, so
// rotated credentials take effect without a restart.
//
// The file must not be readable by group or other.
type FileProvider struct {
	path string

	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	logger  *slog.Logger
}

// NewFileProvider creates a file-based secret provider over path. The file
// is loaded eagerly so startup fails on an unreadable or malformed file
// rather than on the first request that needs it.
func NewFileProvider(path string, watch bool, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FileProvider{
		path:   path,
		stopCh: make(chan struct{}),
		logger: logger,
	}

	if err := p.load(); err != nil {
		return nil, err
	}

	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		// Watch the directory, not the file: editors and kubelet-style
		// updaters replace the file, which would orphan a file watch.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch secrets directory: %w", err)
		}
		p.watcher = watcher
		go p.watchLoop()
		logger.Info("secrets file watching enabled", "path", path)
	}

	return p, nil
}

// GetSecret returns the named value from the current file snapshot.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.values[name]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("secret %q not present in %s", name, p.path)
	}
	return value, nil
}

// Scheme returns the provider scheme.
func (p *FileProvider) Scheme() string {
	return "file"
}

// Close stops the file watcher, if any.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.stopCh)
	return p.watcher.Close()
}

func (p *FileProvider) load() error {
	info, err := os.Stat(p.path)
	if err != nil {
		return fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("secrets path is not a regular file: %s", p.path)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", p.path, mode)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse secrets file %s: %w", p.path, err)
	}
	for name, value := range values {
		values[name] = strings.TrimSpace(value)
	}

	p.mu.Lock()
	p.values = values
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) watchLoop() {
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := p.load(); err != nil {
				// Keep serving the last good snapshot.
				p.logger.Error("failed to reload secrets file", "path", p.path, "error", err)
				continue
			}
			p.logger.Info("secrets file reloaded", "path", p.path)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secrets file watcher error", "path", p.path, "error", err)

		case <-p.stopCh:
			return
		}
	}
}
