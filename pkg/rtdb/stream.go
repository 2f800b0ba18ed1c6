package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	sse "github.com/tmaxmax/go-sse"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skycoder42/firebox/internal/httpx"
	"github.com/Skycoder42/firebox/internal/telemetry"
)

// DefaultMaxEventSize bounds a single server-sent event. The first put of a
// stream carries the whole subtree, so this is far above the SSE default.
const DefaultMaxEventSize = 16 << 20

// Event is one decoded stream event: *PutEvent, *PatchEvent or
// *AuthRevokedEvent.
type Event interface {
	isEvent()
}

// PutEvent replaces the data at Path (relative to the streamed location).
type PutEvent struct {
	Path string
	Data json.RawMessage
}

// PatchEvent merges the children of Data into the data at Path.
type PatchEvent struct {
	Path string
	Data json.RawMessage
}

// AuthRevokedEvent reports that the auth token expired or was revoked. The
// stream stays open until the server closes it; callers should refresh the
// token and open a new stream.
type AuthRevokedEvent struct{}

func (*PutEvent) isEvent()         {}
func (*PatchEvent) isEvent()       {}
func (*AuthRevokedEvent) isEvent() {}

// eventLabel is the closed set of event types the decoder distinguishes.
type eventLabel int

const (
	labelUnknown eventLabel = iota
	labelPut
	labelPatch
	labelKeepAlive
	labelCancel
	labelAuthRevoked
)

func parseLabel(s string) eventLabel {
	switch s {
	case EventPut:
		return labelPut
	case EventPatch:
		return labelPatch
	case EventKeepAlive:
		return labelKeepAlive
	case EventCancel:
		return labelCancel
	case EventAuthRevoked:
		return labelAuthRevoked
	default:
		return labelUnknown
	}
}

// StreamOptions are the read modifiers of a Stream call.
type StreamOptions struct {
	Shallow *bool
	Filter  *Filter
	Format  FormatMode
	// MaxEventSize overrides DefaultMaxEventSize.
	MaxEventSize int
}

// Stream is a live event stream on one location. Events are delivered in
// order on Events; once that channel is closed Err reports why. A Stream
// cannot be restarted.
type Stream struct {
	path      string
	cancel    context.CancelFunc
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	err       error

	logger    *slog.Logger
	telemetry *telemetry.Instruments
	span      trace.Span
}

// Stream opens an event stream on p. Error answers to the initial request
// are returned here as *Error; after that, failures end the stream and are
// reported by Err. The stream holds its connection until the server closes
// it, a cancel event arrives, ctx is done, or Close is called.
func (c *Client) Stream(ctx context.Context, p string, opts *StreamOptions) (*Stream, error) {
	if opts == nil {
		opts = &StreamOptions{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cl := &call{
		op:     "stream",
		method: http.MethodGet,
		path:   p,
		query: query{
			format:  opts.Format,
			shallow: opts.Shallow,
			filter:  opts.Filter,
		},
		accept: ContentTypeEventStream,
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	ctx, span := c.telemetry.Start(ctx, cl.op, cl.path)
	fail := func(status int, err error) (*Stream, error) {
		cancel()
		telemetry.SetStatusCode(span, status)
		c.telemetry.RecordRequest(ctx, telemetry.RequestData{Operation: cl.op, StatusCode: status, Duration: time.Since(start), Error: err})
		telemetry.EndSpan(span, err)
		c.logger.Debug("rtdb stream failed to open", "path", cl.path, "status", status, "error", err)
		return nil, err
	}

	target, err := c.buildURL(cl.path, cl.query)
	if err != nil {
		return fail(0, err)
	}
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: cl.method,
		URL:    target,
		Header: buildHeaders(headerOptions{accept: cl.accept}),
	})
	if err != nil {
		return fail(0, cl.transportError(err))
	}
	if resp.StatusCode >= 300 {
		_, err := decodeResponse(resp, cl)
		return fail(resp.StatusCode, err)
	}

	telemetry.SetStatusCode(span, resp.StatusCode)
	c.telemetry.RecordRequest(ctx, telemetry.RequestData{Operation: cl.op, StatusCode: resp.StatusCode, Duration: time.Since(start)})
	c.logger.Debug("rtdb stream opened", "path", cl.path)

	maxSize := opts.MaxEventSize
	if maxSize <= 0 {
		maxSize = DefaultMaxEventSize
	}
	s := &Stream{
		path:      cl.path,
		cancel:    cancel,
		events:    make(chan Event),
		done:      make(chan struct{}),
		logger:    c.logger,
		telemetry: c.telemetry,
		span:      span,
	}
	go s.run(ctx, resp.Body, maxSize)
	return s, nil
}

// Events returns the channel events are delivered on. It is closed when the
// stream ends.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Next blocks for the next event. It returns io.EOF when the stream ended
// normally and the terminal error otherwise.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			if err := s.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the error that ended the stream, or nil while it is running
// and after a normal end.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Done is closed once the stream has released its connection.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close ends the stream and waits until its connection is released. It is
// safe to call more than once and from any goroutine.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
	})
	<-s.done
	return nil
}

func (s *Stream) run(ctx context.Context, body io.ReadCloser, maxSize int) {
	err := s.consume(ctx, body, maxSize)
	httpx.CloseBody(body)
	s.cancel()

	s.err = err
	telemetry.EndSpan(s.span, err)
	if err != nil {
		s.logger.Debug("rtdb stream failed", "path", s.path, "error", err)
	} else {
		s.logger.Debug("rtdb stream closed", "path", s.path)
	}
	close(s.done)
	close(s.events)
}

func (s *Stream) consume(ctx context.Context, body io.Reader, maxSize int) error {
	for raw, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: maxSize}) {
		if err != nil {
			return s.endError(ctx, err)
		}
		ev, err := s.decode(ctx, raw)
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return s.endError(ctx, ctx.Err())
		}
	}
	return s.endError(ctx, nil)
}

// endError decides how a read failure or EOF ends the stream: nothing when
// the caller closed it, a transport failure otherwise.
func (s *Stream) endError(ctx context.Context, err error) error {
	if s.closing.Load() {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err == nil {
		return nil
	}
	return &TransportError{Op: "stream", Method: http.MethodGet, Path: s.path, Err: err}
}

// decode turns one raw event into an Event. It returns (nil, nil) for
// frames that produce no event.
func (s *Stream) decode(ctx context.Context, raw sse.Event) (Event, error) {
	s.telemetry.RecordStreamEvent(ctx, raw.Type)

	switch parseLabel(raw.Type) {
	case labelPut:
		p, err := decodePayload(raw.Data)
		if err != nil {
			return nil, err
		}
		return &PutEvent{Path: p.Path, Data: p.Data}, nil
	case labelPatch:
		p, err := decodePayload(raw.Data)
		if err != nil {
			return nil, err
		}
		return &PatchEvent{Path: p.Path, Data: p.Data}, nil
	case labelKeepAlive:
		return nil, nil
	case labelCancel:
		return nil, newCancelError(raw.Data)
	case labelAuthRevoked:
		return &AuthRevokedEvent{}, nil
	default:
		s.logger.Debug("rtdb stream: ignoring event", "path", s.path, "event", raw.Type)
		return nil, nil
	}
}

type eventPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

func decodePayload(data string) (*eventPayload, error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Op: "stream", Err: errors.New("event payload is not a JSON object")}
	}
	var p eventPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, &DecodeError{Op: "stream", Err: err}
	}
	if p.Data == nil {
		p.Data = json.RawMessage("null")
	}
	return &p, nil
}
