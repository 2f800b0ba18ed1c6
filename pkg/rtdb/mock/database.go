// Package mock provides an in-memory realtime database that speaks the REST
// and streaming protocol, for tests and local development.
package mock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skycoder42/firebox/internal/logging"
	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// DefaultKeepAlive is the interval between keep-alive frames on open streams.
const DefaultKeepAlive = 30 * time.Second

// subscriberBuffer bounds the frames queued for one stream. A subscriber that
// falls this far behind is disconnected.
const subscriberBuffer = 256

// Database is an in-memory realtime database. It is safe for concurrent use
// and serves the REST and streaming protocol through Handler.
type Database struct {
	mu        sync.Mutex
	root      any
	authToken string
	subs      map[*subscriber]struct{}

	keepAlive time.Duration
	newID     func() string
	logger    *slog.Logger
}

// Option configures the database instance.
type Option func(*Database)

// WithAuthToken requires every request to carry token in the auth parameter.
func WithAuthToken(token string) Option {
	return func(d *Database) {
		d.authToken = token
	}
}

// WithKeepAlive overrides the keep-alive interval for streams. Zero or a
// negative value disables keep-alive frames.
func WithKeepAlive(interval time.Duration) Option {
	return func(d *Database) {
		d.keepAlive = interval
	}
}

// WithIDGenerator overrides how POST generates child keys (useful in tests).
func WithIDGenerator(fn func() string) Option {
	return func(d *Database) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// WithLogger attaches a logger for request and stream diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) {
		d.logger = logger
	}
}

// New creates an empty database.
func New(opts ...Option) *Database {
	d := &Database{
		subs:      make(map[*subscriber]struct{}),
		keepAlive: DefaultKeepAlive,
		newID:     pushID,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)
	return d
}

// pushID returns a time-ordered key, so children created later sort after
// earlier ones.
func pushID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Seed replaces the whole tree with data. Streams receive the new root.
func (d *Database) Seed(data any) error {
	return d.Set("/", data)
}

// Set stores value at p as a PUT would. A nil value deletes the location.
func (d *Database) Set(p string, value any) error {
	tree, err := toTree(value)
	if err != nil {
		return fmt.Errorf("mock rtdb: set %s: %w", p, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.put(splitPath(p), tree)
	return nil
}

// Value returns the JSON encoding of the data at p, or null.
func (d *Database) Value(p string) json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encode(getAt(d.root, splitPath(p)))
}

// ETag returns the current ETag of the data at p.
func (d *Database) ETag(p string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return etagOf(getAt(d.root, splitPath(p)))
}

// SetAuthToken changes the token required from now on. An empty token turns
// authentication off. Open streams are not affected; see RevokeAuth.
func (d *Database) SetAuthToken(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authToken = token
}

// RevokeAuth sends auth_revoked to every open stream and closes them.
func (d *Database) RevokeAuth() {
	d.broadcastFinal(frame{event: rtdb.EventAuthRevoked, data: []byte(`"credential is no longer valid"`)})
}

// CancelStreams sends cancel with message to every open stream and closes
// them, as the server does when security rules stop allowing a read.
func (d *Database) CancelStreams(message string) {
	d.broadcastFinal(frame{event: rtdb.EventCancel, data: encode(message)})
}

// Streams reports the number of open streams.
func (d *Database) Streams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

func (d *Database) authorized(token string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authToken == "" || token == d.authToken
}

// put replaces the value at segs and notifies streams. d.mu must be held.
func (d *Database) put(segs []string, value any) {
	before := d.root
	d.root = setAt(d.root, segs, value)
	d.notifyPut(before, segs)
}

// patch merges the direct children of update into segs. Keys of update may
// be multi-segment paths. d.mu must be held.
func (d *Database) patch(segs []string, update map[string]any) {
	before := d.root
	for key, value := range update {
		d.root = setAt(d.root, append(append([]string(nil), segs...), splitPath(key)...), value)
	}
	d.notifyPatch(before, segs, update)
}

func (d *Database) notifyPut(before any, segs []string) {
	for sub := range d.subs {
		switch {
		case hasPrefix(segs, sub.path):
			sub.send(putFrame(segs[len(sub.path):], getAt(d.root, segs)))
		case hasPrefix(sub.path, segs):
			d.sendIfChanged(sub, before)
		}
	}
}

func (d *Database) notifyPatch(before any, segs []string, update map[string]any) {
	for sub := range d.subs {
		switch {
		case hasPrefix(segs, sub.path):
			sub.send(frame{event: rtdb.EventPatch, data: encode(payload{Path: joinPath(segs[len(sub.path):]), Data: update})})
		case hasPrefix(sub.path, segs):
			d.sendIfChanged(sub, before)
		}
	}
}

// sendIfChanged pushes a full put to a stream rooted below a write, but only
// when the value it observes actually changed.
func (d *Database) sendIfChanged(sub *subscriber, before any) {
	after := getAt(d.root, sub.path)
	if etagOf(getAt(before, sub.path)) == etagOf(after) {
		return
	}
	sub.send(putFrame(nil, after))
}

func (d *Database) subscribe(segs []string) *subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub := newSubscriber(segs)
	sub.send(putFrame(nil, getAt(d.root, segs)))
	d.subs[sub] = struct{}{}
	return sub
}

func (d *Database) unsubscribe(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, sub)
}

func (d *Database) broadcastFinal(f frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sub := range d.subs {
		sub.finish(f)
		delete(d.subs, sub)
	}
}

type payload struct {
	Path string `json:"path"`
	Data any    `json:"data"`
}

type frame struct {
	event string
	data  []byte
}

func putFrame(rel []string, value any) frame {
	return frame{event: rtdb.EventPut, data: encode(payload{Path: joinPath(rel), Data: value})}
}

type subscriber struct {
	path   []string
	frames chan frame
	// final carries the frame that ends the stream. It is buffered so
	// finish never blocks while the database lock is held.
	final   chan frame
	dropped chan struct{}
	once    sync.Once
}

func newSubscriber(segs []string) *subscriber {
	return &subscriber{
		path:    segs,
		frames:  make(chan frame, subscriberBuffer),
		final:   make(chan frame, 1),
		dropped: make(chan struct{}),
	}
}

func (s *subscriber) send(f frame) {
	select {
	case s.frames <- f:
	default:
		s.once.Do(func() { close(s.dropped) })
	}
}

func (s *subscriber) finish(f frame) {
	select {
	case s.final <- f:
	default:
	}
}
