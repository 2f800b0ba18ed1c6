package rtdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Skycoder42/firebox/internal/httpx"
	"github.com/Skycoder42/firebox/internal/telemetry"
)

// GetOptions are the read modifiers of a Get call.
type GetOptions struct {
	// Shallow, when non-nil, sends shallow=true or shallow=false.
	Shallow *bool
	Filter  *Filter
	Print   PrintMode
	Format  FormatMode
	// ETag requests the location's ETag in Response.ETag.
	ETag bool
}

// WriteOptions modify Post, Put and Patch calls.
type WriteOptions struct {
	Print PrintMode
	ETag  bool
	// IfMatch makes the write conditional on the location's current ETag.
	// Only Put honours it.
	IfMatch string
}

// DeleteOptions modify Delete calls.
type DeleteOptions struct {
	Print   PrintMode
	ETag    bool
	IfMatch string
}

// Bool returns a pointer to b, for GetOptions.Shallow.
func Bool(b bool) *bool {
	return &b
}

// call describes one request before it is built.
type call struct {
	op      string
	method  string
	path    string
	query   query
	body    any
	hasBody bool
	eTag    bool
	ifMatch string
	accept  string
}

// transportError wraps err, replacing the URL inside a *url.Error with the
// bare path so the auth parameter never reaches an error string.
func (cl *call) transportError(err error) *TransportError {
	if urlErr, ok := err.(*url.Error); ok {
		redacted := *urlErr
		redacted.URL = cl.path
		err = &redacted
	}
	return &TransportError{Op: cl.op, Method: cl.method, Path: cl.path, Err: err}
}

// Get reads the value at p.
func (c *Client) Get(ctx context.Context, p string, opts *GetOptions) (*Response, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	return c.do(ctx, &call{
		op:     "get",
		method: http.MethodGet,
		path:   p,
		query: query{
			print:   opts.Print,
			format:  opts.Format,
			shallow: opts.Shallow,
			filter:  opts.Filter,
		},
		eTag: opts.ETag,
	})
}

// Post appends body as a new child of p. The server answers with
// {"name": "<generated key>"}. body may be any JSON value, not only an
// object; the service stores scalars and arrays as children too.
func (c *Client) Post(ctx context.Context, p string, body any, opts *WriteOptions) (*Response, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	return c.do(ctx, &call{
		op:      "post",
		method:  http.MethodPost,
		path:    p,
		query:   query{print: opts.Print},
		body:    body,
		hasBody: true,
		eTag:    opts.ETag,
	})
}

// Put replaces the value at p with body. Like Post, body may be any JSON
// value; a null body deletes the location.
func (c *Client) Put(ctx context.Context, p string, body any, opts *WriteOptions) (*Response, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	return c.do(ctx, &call{
		op:      "put",
		method:  http.MethodPut,
		path:    p,
		query:   query{print: opts.Print},
		body:    body,
		hasBody: true,
		eTag:    opts.ETag,
		ifMatch: opts.IfMatch,
	})
}

// Patch merges the children of body into the value at p. Keys may be
// relative paths; a null value deletes that child.
func (c *Client) Patch(ctx context.Context, p string, body any, opts *WriteOptions) (*Response, error) {
	if opts == nil {
		opts = &WriteOptions{}
	}
	return c.do(ctx, &call{
		op:      "patch",
		method:  http.MethodPatch,
		path:    p,
		query:   query{print: opts.Print},
		body:    body,
		hasBody: true,
		eTag:    opts.ETag,
	})
}

// Delete removes the value at p.
func (c *Client) Delete(ctx context.Context, p string, opts *DeleteOptions) (*Response, error) {
	if opts == nil {
		opts = &DeleteOptions{}
	}
	return c.do(ctx, &call{
		op:      "delete",
		method:  http.MethodDelete,
		path:    p,
		query:   query{print: opts.Print},
		eTag:    opts.ETag,
		ifMatch: opts.IfMatch,
	})
}

func (c *Client) do(ctx context.Context, cl *call) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := c.telemetry.Start(ctx, cl.op, cl.path)

	resp, status, err := c.roundTrip(ctx, cl)

	telemetry.SetStatusCode(span, status)
	c.telemetry.RecordRequest(ctx, telemetry.RequestData{
		Operation:  cl.op,
		StatusCode: status,
		Duration:   time.Since(start),
		Error:      err,
	})
	telemetry.EndSpan(span, err)
	if err != nil {
		c.logger.Debug("rtdb request failed", "op", cl.op, "path", cl.path, "status", status, "error", err)
	} else {
		c.logger.Debug("rtdb request", "op", cl.op, "path", cl.path, "status", status)
	}
	return resp, err
}

// roundTrip sends cl and returns the decoded response plus the HTTP status,
// which is 0 when no response arrived.
func (c *Client) roundTrip(ctx context.Context, cl *call) (*Response, int, error) {
	target, err := c.buildURL(cl.path, cl.query)
	if err != nil {
		return nil, 0, err
	}

	var payload []byte
	if cl.hasBody {
		payload, err = httpx.MarshalJSON(cl.body)
		if err != nil {
			return nil, 0, fmt.Errorf("rtdb: encode %s body: %w", cl.op, err)
		}
	}

	httpResp, err := c.http.Do(ctx, &httpx.Request{
		Method: cl.method,
		URL:    target,
		Header: buildHeaders(headerOptions{
			accept:  cl.accept,
			body:    cl.hasBody,
			eTag:    cl.eTag,
			ifMatch: cl.ifMatch,
		}),
		Body: payload,
	})
	if err != nil {
		return nil, 0, cl.transportError(err)
	}

	resp, err := decodeResponse(httpResp, cl)
	return resp, httpResp.StatusCode, err
}
