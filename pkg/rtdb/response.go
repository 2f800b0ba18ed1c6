package rtdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Skycoder42/firebox/internal/httpx"
)

// Response is the decoded answer to a successful request.
type Response struct {
	// Data is the JSON document returned by the server. It is nil only for
	// 204 No Content answers.
	Data json.RawMessage
	// ETag is set only when the request asked for ETag tracking.
	ETag string
}

// Decode unmarshals Data into v. A nil Data decodes as JSON null.
func (r *Response) Decode(v any) error {
	data := r.Data
	if data == nil {
		data = json.RawMessage("null")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Op: "value", Err: err}
	}
	return nil
}

// IsNull reports whether the response carried no data or a JSON null.
func (r *Response) IsNull() bool {
	return r.Data == nil || bytes.Equal(bytes.TrimSpace(r.Data), []byte("null"))
}

// decodeResponse classifies resp and closes its body.
func decodeResponse(resp *http.Response, cl *call) (*Response, error) {
	body, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, cl.transportError(err)
	}

	if resp.StatusCode >= 300 {
		return nil, newStatusError(cl.op, resp.StatusCode, body, resp.Header.Get(HeaderETag))
	}

	out := &Response{}
	if cl.eTag {
		out.ETag = resp.Header.Get(HeaderETag)
	}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Op: cl.op, Err: errors.New("empty response body")}
	}
	if !json.Valid(trimmed) {
		return nil, &DecodeError{Op: cl.op, Err: errors.New("response body is not valid JSON")}
	}
	out.Data = json.RawMessage(trimmed)
	return out, nil
}
