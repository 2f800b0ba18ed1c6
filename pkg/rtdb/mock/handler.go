package mock

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// maxBodySize matches the largest write the real service accepts.
const maxBodySize = 256 << 20

// Handler serves the database over the REST protocol. Every resource path
// ends in ".json". GET requests that accept text/event-stream open a stream;
// streams ignore ordering and filter parameters.
func (d *Database) Handler() http.Handler {
	return http.HandlerFunc(d.serve)
}

func (d *Database) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, ".json") {
		writeError(w, http.StatusNotFound, "404 Not Found")
		return
	}
	segs := splitPath(strings.TrimSuffix(r.URL.Path, ".json"))
	values := r.URL.Query()
	d.logger.Debug("mock rtdb request", "method", r.Method, "path", joinPath(segs))

	if !d.authorized(values.Get(rtdb.QueryAuth)) {
		writeError(w, http.StatusUnauthorized, "Permission denied")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if strings.Contains(r.Header.Get(rtdb.HeaderAccept), rtdb.ContentTypeEventStream) {
			d.serveStream(w, r, segs)
			return
		}
		d.handleGet(w, r, segs)
	case http.MethodPut:
		d.handlePut(w, r, segs)
	case http.MethodPost:
		d.handlePost(w, r, segs)
	case http.MethodPatch:
		d.handlePatch(w, r, segs)
	case http.MethodDelete:
		d.handleDelete(w, r, segs)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (d *Database) handleGet(w http.ResponseWriter, r *http.Request, segs []string) {
	values := r.URL.Query()
	q, err := parseQuery(values)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	isShallow := values.Get(rtdb.QueryShallow) == "true"
	if isShallow && q != nil {
		writeError(w, http.StatusBadRequest, "shallow cannot be used with any of the other query parameters")
		return
	}

	d.mu.Lock()
	value := getAt(d.root, segs)
	d.mu.Unlock()

	eTag := etagOf(value)
	if isShallow {
		value = shallow(value)
	}
	value = q.apply(value)
	respond(w, r, value, eTag)
}

func (d *Database) handlePut(w http.ResponseWriter, r *http.Request, segs []string) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}

	d.mu.Lock()
	current := etagOf(getAt(d.root, segs))
	if ifMatch := r.Header.Get(rtdb.HeaderIfMatch); ifMatch != "" && ifMatch != current {
		d.mu.Unlock()
		preconditionFailed(w, current)
		return
	}
	d.put(segs, value)
	eTag := etagOf(getAt(d.root, segs))
	d.mu.Unlock()

	respond(w, r, value, eTag)
}

func (d *Database) handlePost(w http.ResponseWriter, r *http.Request, segs []string) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}

	id := d.newID()
	childSegs := append(append([]string(nil), segs...), id)
	d.mu.Lock()
	d.put(childSegs, value)
	eTag := etagOf(getAt(d.root, childSegs))
	d.mu.Unlock()

	respond(w, r, map[string]any{"name": id}, eTag)
}

func (d *Database) handlePatch(w http.ResponseWriter, r *http.Request, segs []string) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		writeError(w, http.StatusBadRequest, "Invalid data; couldn't parse JSON object. Are you sending a JSON object with valid key names?")
		return
	}
	update := make(map[string]any, len(fields))
	for key, rawValue := range fields {
		if len(splitPath(key)) == 0 {
			writeError(w, http.StatusBadRequest, "Invalid data; patch keys must not be empty")
			return
		}
		value, err := decodeValue(rawValue)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid data at %q", key))
			return
		}
		update[key] = value
	}

	d.mu.Lock()
	d.patch(segs, update)
	eTag := etagOf(getAt(d.root, segs))
	d.mu.Unlock()

	respond(w, r, update, eTag)
}

func (d *Database) handleDelete(w http.ResponseWriter, r *http.Request, segs []string) {
	d.mu.Lock()
	current := etagOf(getAt(d.root, segs))
	if ifMatch := r.Header.Get(rtdb.HeaderIfMatch); ifMatch != "" && ifMatch != current {
		d.mu.Unlock()
		preconditionFailed(w, current)
		return
	}
	d.put(segs, nil)
	d.mu.Unlock()

	respond(w, r, nil, rtdb.NullETag)
}

func (d *Database) serveStream(w http.ResponseWriter, r *http.Request, segs []string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set(rtdb.HeaderContentType, rtdb.ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := d.subscribe(segs)
	defer d.unsubscribe(sub)
	d.logger.Debug("mock rtdb stream opened", "path", joinPath(segs))
	defer d.logger.Debug("mock rtdb stream closed", "path", joinPath(segs))

	var keepAlive <-chan time.Time
	if d.keepAlive > 0 {
		ticker := time.NewTicker(d.keepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.dropped:
			d.logger.Warn("mock rtdb stream dropped, subscriber too slow", "path", joinPath(segs))
			return
		case f := <-sub.frames:
			if writeFrame(w, flusher, f) != nil {
				return
			}
		case f := <-sub.final:
			if drainFrames(w, flusher, sub.frames) == nil {
				_ = writeFrame(w, flusher, f)
			}
			return
		case <-keepAlive:
			if writeFrame(w, flusher, frame{event: rtdb.EventKeepAlive, data: []byte("null")}) != nil {
				return
			}
		}
	}
}

// drainFrames writes everything already queued, so a final frame never
// overtakes earlier updates.
func drainFrames(w io.Writer, flusher http.Flusher, frames <-chan frame) error {
	for {
		select {
		case f := <-frames:
			if err := writeFrame(w, flusher, f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func writeFrame(w io.Writer, flusher http.Flusher, f frame) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.event, f.data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Data to write exceeds the maximum size that can be modified with a single request.")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return raw, true
}

func readValue(w http.ResponseWriter, r *http.Request) (any, bool) {
	raw, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	value, err := decodeValue(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data; couldn't parse JSON object, array, or value.")
		return nil, false
	}
	return value, true
}

// respond writes value honouring the print parameter and, when the request
// asked for it, the ETag header.
func respond(w http.ResponseWriter, r *http.Request, value any, eTag string) {
	if r.Header.Get(rtdb.HeaderETagRequest) == "true" {
		w.Header().Set(rtdb.HeaderETag, eTag)
	}
	switch rtdb.PrintMode(r.URL.Query().Get(rtdb.QueryPrint)) {
	case rtdb.PrintSilent:
		w.WriteHeader(http.StatusNoContent)
	case rtdb.PrintPretty:
		var buf bytes.Buffer
		if err := json.Indent(&buf, encode(value), "", "  "); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, buf.Bytes())
	default:
		writeJSON(w, http.StatusOK, encode(value))
	}
}

func preconditionFailed(w http.ResponseWriter, current string) {
	w.Header().Set(rtdb.HeaderETag, current)
	writeError(w, http.StatusPreconditionFailed, "ETag mismatch.")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, encode(map[string]string{"error": message}))
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set(rtdb.HeaderContentType, rtdb.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
