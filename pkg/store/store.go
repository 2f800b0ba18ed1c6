package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/Skycoder42/firebox/internal/logging"
	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// Default reconnect delays of Watch.
const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// Config describes a Store.
type Config[T any] struct {
	Client *rtdb.Client
	// Path is the location whose children are the entries. Empty means the
	// database root.
	Path string
	// Codec defaults to JSONCodec.
	Codec Codec[T]

	// MinBackoff and MaxBackoff bound the delay between Watch reconnects.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// Store is a typed collection of entries below one location. It is safe for
// concurrent use.
type Store[T any] struct {
	client     *rtdb.Client
	path       string
	codec      Codec[T]
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// New builds a Store from cfg.
func New[T any](cfg Config[T]) (*Store[T], error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("store: client is required")
	}
	s := &Store[T]{
		client:     cfg.Client,
		path:       path.Clean("/" + cfg.Path),
		codec:      cfg.Codec,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
		logger:     logging.OrNop(cfg.Logger),
	}
	if s.codec == nil {
		s.codec = JSONCodec[T]{}
	}
	if s.minBackoff <= 0 {
		s.minBackoff = DefaultMinBackoff
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = DefaultMaxBackoff
	}
	return s, nil
}

// FromClient is New with the default codec.
func FromClient[T any](client *rtdb.Client, p string) (*Store[T], error) {
	return New(Config[T]{Client: client, Path: p})
}

// FromCredentials creates a client for database authenticated with token and
// binds a Store with the default codec to p.
func FromCredentials[T any](database, token, p string, opts ...rtdb.Option) (*Store[T], error) {
	client, err := rtdb.New(database, append([]rtdb.Option{rtdb.WithAuthToken(token)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return FromClient[T](client, p)
}

// Client returns the underlying protocol client.
func (s *Store[T]) Client() *rtdb.Client {
	return s.client
}

// Path returns the location of the store, always starting with "/".
func (s *Store[T]) Path() string {
	return s.path
}

func (s *Store[T]) keyPath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: key is required", ErrInvalidKey)
	}
	if strings.ContainsAny(key, ".$#[]/") {
		return "", fmt.Errorf("%w: %q contains one of . $ # [ ] /", ErrInvalidKey, key)
	}
	return path.Join(s.path, key), nil
}

// Keys lists the keys of all entries in sorted order without transferring
// their values.
func (s *Store[T]) Keys(ctx context.Context) ([]string, error) {
	resp, err := s.client.Get(ctx, s.path, &rtdb.GetOptions{Shallow: rtdb.Bool(true)})
	if err != nil {
		return nil, err
	}
	if resp.IsNull() {
		return []string{}, nil
	}
	var children map[string]json.RawMessage
	if err := resp.Decode(&children); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(children)), nil
}

// All reads every entry.
func (s *Store[T]) All(ctx context.Context) (map[string]T, error) {
	return s.Query(ctx, nil)
}

// Query reads the entries selected by filter. A nil filter selects all.
func (s *Store[T]) Query(ctx context.Context, filter *rtdb.Filter) (map[string]T, error) {
	resp, err := s.client.Get(ctx, s.path, &rtdb.GetOptions{Filter: filter})
	if err != nil {
		return nil, err
	}
	values, ok, err := s.decodeChildren(resp.Data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rtdb.DecodeError{Op: "store", Err: fmt.Errorf("data at %s is not an object", s.path)}
	}
	return values, nil
}

// Read returns the entry at key. found is false when the key holds no data.
func (s *Store[T]) Read(ctx context.Context, key string) (value T, found bool, err error) {
	item, err := s.read(ctx, key, false)
	if err != nil {
		return value, false, err
	}
	return item.Value, item.Found, nil
}

// ReadTagged returns the entry at key together with its ETag, for a later
// conditional Write or Delete.
func (s *Store[T]) ReadTagged(ctx context.Context, key string) (*Item[T], error) {
	return s.read(ctx, key, true)
}

func (s *Store[T]) read(ctx context.Context, key string, eTag bool) (*Item[T], error) {
	p, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Get(ctx, p, &rtdb.GetOptions{ETag: eTag})
	if err != nil {
		return nil, err
	}
	item := &Item[T]{Key: key, ETag: resp.ETag}
	if resp.IsNull() {
		return item, nil
	}
	if item.Value, err = s.decode(key, resp.Data); err != nil {
		return nil, err
	}
	item.Found = true
	return item, nil
}

// Write stores value at key, replacing whatever was there.
func (s *Store[T]) Write(ctx context.Context, key string, value T, opts *WriteOptions) (*Item[T], error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	p, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	raw, err := s.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode %q: %w", key, err)
	}
	resp, err := s.client.Put(ctx, p, raw, &rtdb.WriteOptions{
		Print:   rtdb.PrintSilent,
		ETag:    opts.ETag,
		IfMatch: opts.IfMatch,
	})
	if err != nil {
		return nil, err
	}
	return &Item[T]{Key: key, Value: value, ETag: resp.ETag, Found: true}, nil
}

// Create adds value under a new server generated key and returns that key.
// Generated keys sort in creation order.
func (s *Store[T]) Create(ctx context.Context, value T) (string, error) {
	raw, err := s.codec.Encode(value)
	if err != nil {
		return "", fmt.Errorf("store: encode new entry: %w", err)
	}
	resp, err := s.client.Post(ctx, s.path, raw, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", &rtdb.DecodeError{Op: "store", Err: fmt.Errorf("post response carries no name")}
	}
	return out.Name, nil
}

// Update changes individual fields of the entry at key. Field names may be
// slash separated paths; a nil value deletes the field.
func (s *Store[T]) Update(ctx context.Context, key string, fields map[string]any) error {
	p, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	_, err = s.client.Patch(ctx, p, fields, &rtdb.WriteOptions{Print: rtdb.PrintSilent})
	return err
}

// Delete removes the entry at key. A non-empty ifMatch makes the delete
// conditional on the entry's current ETag.
func (s *Store[T]) Delete(ctx context.Context, key string, ifMatch string) error {
	p, err := s.keyPath(key)
	if err != nil {
		return err
	}
	_, err = s.client.Delete(ctx, p, &rtdb.DeleteOptions{Print: rtdb.PrintSilent, IfMatch: ifMatch})
	return err
}

// Transaction reads the entry at key, passes it to fn and writes the result
// back on the condition that the entry did not change in between. A
// concurrent change fails with rtdb.ErrPreconditionFailed; the caller decides
// whether to run the transaction again. An error from fn aborts without
// writing.
func (s *Store[T]) Transaction(ctx context.Context, key string, fn func(value T, found bool) (T, error)) (*Item[T], error) {
	current, err := s.ReadTagged(ctx, key)
	if err != nil {
		return nil, err
	}
	next, err := fn(current.Value, current.Found)
	if err != nil {
		return nil, err
	}
	return s.Write(ctx, key, next, &WriteOptions{IfMatch: current.ETag, ETag: true})
}

func (s *Store[T]) decode(key string, raw json.RawMessage) (T, error) {
	value, err := s.codec.Decode(raw)
	if err != nil {
		return value, &rtdb.DecodeError{Op: "store", Err: fmt.Errorf("entry %q: %w", key, err)}
	}
	return value, nil
}

// decodeChildren decodes an object of entries. ok is false when raw is
// neither null nor an object.
func (s *Store[T]) decodeChildren(raw json.RawMessage) (values map[string]T, ok bool, err error) {
	children, ok := objectOf(raw)
	if !ok {
		return nil, false, nil
	}
	values = make(map[string]T, len(children))
	for key, child := range children {
		if isNull(child) {
			continue
		}
		if values[key], err = s.decode(key, child); err != nil {
			return nil, true, err
		}
	}
	return values, true, nil
}

// objectOf splits a JSON object into its members. null counts as an empty
// object.
func objectOf(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if isNull(raw) {
		return map[string]json.RawMessage{}, true
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, false
	}
	return children, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
