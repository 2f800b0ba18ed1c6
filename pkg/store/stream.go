package store

import (
	"context"
	"encoding/json"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// Stream delivers entry level events for a store. It is not safe for
// concurrent Next calls.
type Stream[T any] struct {
	store   *Store[T]
	raw     *rtdb.Stream
	pending []Event
}

// Stream opens an event stream on the store location. The first event is a
// *Reset carrying every entry.
func (s *Store[T]) Stream(ctx context.Context) (*Stream[T], error) {
	raw, err := s.client.Stream(ctx, s.path, nil)
	if err != nil {
		return nil, err
	}
	return &Stream[T]{store: s, raw: raw}, nil
}

// Next blocks for the next event. It returns io.EOF when the server ended the
// stream normally and the terminal error otherwise.
func (st *Stream[T]) Next(ctx context.Context) (Event, error) {
	for len(st.pending) == 0 {
		ev, err := st.raw.Next(ctx)
		if err != nil {
			return nil, err
		}
		if st.pending, err = st.translate(ev); err != nil {
			return nil, err
		}
	}
	ev := st.pending[0]
	st.pending = st.pending[1:]
	return ev, nil
}

// Done is closed once the stream has released its connection.
func (st *Stream[T]) Done() <-chan struct{} {
	return st.raw.Done()
}

// Close ends the stream.
func (st *Stream[T]) Close() error {
	return st.raw.Close()
}

func (st *Stream[T]) translate(ev rtdb.Event) ([]Event, error) {
	switch ev := ev.(type) {
	case *rtdb.PutEvent:
		return st.translatePut(splitPath(ev.Path), ev.Data)
	case *rtdb.PatchEvent:
		return st.translatePatch(splitPath(ev.Path), ev.Data)
	case *rtdb.AuthRevokedEvent:
		return []Event{&AuthRevoked{}}, nil
	default:
		return nil, nil
	}
}

func (st *Stream[T]) translatePut(segs []string, data json.RawMessage) ([]Event, error) {
	switch len(segs) {
	case 0:
		values, ok, err := st.store.decodeChildren(data)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []Event{&InvalidPath{Path: "/"}}, nil
		}
		return []Event{&Reset[T]{Values: values}}, nil
	case 1:
		return st.entryEvent(segs[0], data)
	default:
		return []Event{&Patch{
			Key:    segs[0],
			Fields: map[string]json.RawMessage{strings.Join(segs[1:], "/"): data},
		}}, nil
	}
}

func (st *Stream[T]) translatePatch(segs []string, data json.RawMessage) ([]Event, error) {
	fields, ok := objectOf(data)
	if !ok {
		return []Event{&InvalidPath{Path: "/" + strings.Join(segs, "/")}}, nil
	}

	if len(segs) > 0 {
		prefix := strings.Join(segs[1:], "/")
		out := make(map[string]json.RawMessage, len(fields))
		for field, value := range fields {
			out[path.Join(prefix, strings.Trim(field, "/"))] = value
		}
		return []Event{&Patch{Key: segs[0], Fields: out}}, nil
	}

	// A patch at the store location touches several entries at once.
	var events []Event
	for _, field := range slices.Sorted(maps.Keys(fields)) {
		evs, err := st.translatePut(splitPath(field), fields[field])
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (st *Stream[T]) entryEvent(key string, data json.RawMessage) ([]Event, error) {
	if isNull(data) {
		return []Event{&Delete{Key: key}}, nil
	}
	value, err := st.store.decode(key, data)
	if err != nil {
		return nil, err
	}
	return []Event{&Put[T]{Key: key, Value: value}}, nil
}

func splitPath(p string) []string {
	cleaned := strings.Trim(path.Clean("/"+p), "/")
	if cleaned == "" {
		return nil
	}
	return strings.Split(cleaned, "/")
}
