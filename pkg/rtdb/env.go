package rtdb

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Skycoder42/firebox/internal/logging"
)

// Environment variables read by NewFromEnv.
const (
	EnvDatabase       = "FIREBASE_DATABASE"
	EnvBasePath       = "FIREBASE_BASE_PATH"
	EnvAuthToken      = "FIREBASE_AUTH_TOKEN"
	EnvEndpoint       = "FIREBOX_ENDPOINT"
	EnvTimeout        = "FIREBOX_TIMEOUT"
	EnvWriteSizeLimit = "FIREBOX_WRITE_SIZE_LIMIT"
	EnvLogLevel       = "FIREBOX_LOG_LEVEL"
	EnvLogFormat      = "FIREBOX_LOG_FORMAT"
)

// NewFromEnv builds a Client from the FIREBASE_* and FIREBOX_* environment
// variables. Either FIREBASE_DATABASE or FIREBOX_ENDPOINT must be set.
// Options in opts are applied after the environment and win over it.
func NewFromEnv(opts ...Option) (*Client, error) {
	database := strings.TrimSpace(os.Getenv(EnvDatabase))
	endpoint := strings.TrimSpace(os.Getenv(EnvEndpoint))
	if database == "" && endpoint == "" {
		return nil, fmt.Errorf("rtdb: %s or %s is required", EnvDatabase, EnvEndpoint)
	}

	var envOpts []Option
	if endpoint != "" {
		envOpts = append(envOpts, WithEndpoint(endpoint))
	}
	if base := strings.TrimSpace(os.Getenv(EnvBasePath)); base != "" {
		envOpts = append(envOpts, WithBasePath(base))
	}
	if token := strings.TrimSpace(os.Getenv(EnvAuthToken)); token != "" {
		envOpts = append(envOpts, WithAuthToken(token))
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTimeout)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("rtdb: parse %s: %w", EnvTimeout, err)
		}
		envOpts = append(envOpts, WithTimeout(d))
	}
	if raw := strings.TrimSpace(os.Getenv(EnvWriteSizeLimit)); raw != "" {
		l, err := ParseWriteSizeLimit(raw)
		if err != nil {
			return nil, err
		}
		envOpts = append(envOpts, WithWriteSizeLimit(l))
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		envOpts = append(envOpts, WithLogger(logging.New(logging.Config{
			Level:  logging.ParseLevel(level),
			Format: logging.ParseFormat(os.Getenv(EnvLogFormat)),
		})))
	}

	return New(database, append(envOpts, opts...)...)
}
