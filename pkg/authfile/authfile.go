// Package authfile keeps a client's auth token in sync with a file on disk,
// as written by secret managers or a sidecar that refreshes ID tokens.
package authfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Skycoder42/firebox/internal/logging"
	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// ErrEmptyToken is returned when the token file holds only whitespace.
var ErrEmptyToken = errors.New("authfile: token file is empty")

// Watcher pushes the content of a token file into a TokenSink. Load and Run
// must not be called concurrently.
type Watcher struct {
	path   string
	sink   rtdb.TokenSink
	logger *slog.Logger
	last   string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger attaches a logger for reload diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a Watcher for the file at path. It does not read the file;
// call Load or Run.
func New(path string, sink rtdb.TokenSink, opts ...Option) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("authfile: path is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("authfile: token sink is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("authfile: resolve %s: %w", path, err)
	}
	w := &Watcher{path: abs, sink: sink}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger)
	return w, nil
}

// Load reads the token file once and hands the trimmed token to the sink
// when it differs from the last one delivered.
func (w *Watcher) Load() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("authfile: read %s: %w", w.path, err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return ErrEmptyToken
	}
	if token != w.last {
		w.sink.SetAuthToken(token)
		w.last = token
		w.logger.Debug("auth token reloaded", "path", w.path)
	}
	return nil
}

// Run loads the token and then reloads it whenever the file is written,
// created or renamed into place, until ctx is cancelled. The parent directory
// is watched so that atomic replacements are seen. The initial load must
// succeed; later read failures are logged and the previous token is kept.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("authfile: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("authfile: watch %s: %w", filepath.Dir(w.path), err)
	}
	if err := w.Load(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := w.Load(); err != nil {
				w.logger.Warn("auth token reload failed", "path", w.path, "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("auth token watcher error", "path", w.path, "error", err)
		}
	}
}
