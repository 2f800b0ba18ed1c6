package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycoder42/firebox/pkg/rtdb"
	"github.com/Skycoder42/firebox/pkg/rtdb/mock"
	"github.com/Skycoder42/firebox/pkg/store"
)

func next(t *testing.T, st *store.Stream[user]) store.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := st.Next(ctx)
	require.NoError(t, err)
	return ev
}

func TestStreamTranslatesEvents(t *testing.T) {
	db, s := newStore(t)
	ctx := context.Background()
	require.NoError(t, db.Set("app/users/alice", user{Name: "Alice", Age: 31}))

	st, err := s.Stream(ctx)
	require.NoError(t, err)
	defer st.Close()

	reset, ok := next(t, st).(*store.Reset[user])
	require.True(t, ok)
	assert.Equal(t, map[string]user{"alice": {Name: "Alice", Age: 31}}, reset.Values)

	_, err = s.Write(ctx, "bob", user{Name: "Bob", Age: 25}, nil)
	require.NoError(t, err)
	put, ok := next(t, st).(*store.Put[user])
	require.True(t, ok)
	assert.Equal(t, "bob", put.Key)
	assert.Equal(t, user{Name: "Bob", Age: 25}, put.Value)

	require.NoError(t, s.Update(ctx, "bob", map[string]any{"age": 26}))
	patch, ok := next(t, st).(*store.Patch)
	require.True(t, ok)
	assert.Equal(t, "bob", patch.Key)
	require.Contains(t, patch.Fields, "age")
	assert.JSONEq(t, `26`, string(patch.Fields["age"]))

	require.NoError(t, db.Set("app/users/bob/name", "Robert"))
	patch, ok = next(t, st).(*store.Patch)
	require.True(t, ok)
	assert.Equal(t, "bob", patch.Key)
	assert.JSONEq(t, `"Robert"`, string(patch.Fields["name"]))

	require.NoError(t, s.Delete(ctx, "alice", ""))
	del, ok := next(t, st).(*store.Delete)
	require.True(t, ok)
	assert.Equal(t, "alice", del.Key)
}

func TestStreamPatchAtStoreRoot(t *testing.T) {
	db, s := newStore(t)
	ctx := context.Background()
	require.NoError(t, db.Set("app/users/alice", user{Name: "Alice"}))

	st, err := s.Stream(ctx)
	require.NoError(t, err)
	defer st.Close()
	_, ok := next(t, st).(*store.Reset[user])
	require.True(t, ok)

	_, err = s.Client().Patch(ctx, "app/users", map[string]any{
		"alice":     nil,
		"bob":       user{Name: "Bob"},
		"carol/age": 7,
	}, nil)
	require.NoError(t, err)

	// Fields are handled in key order.
	del, ok := next(t, st).(*store.Delete)
	require.True(t, ok)
	assert.Equal(t, "alice", del.Key)

	put, ok := next(t, st).(*store.Put[user])
	require.True(t, ok)
	assert.Equal(t, "bob", put.Key)

	patch, ok := next(t, st).(*store.Patch)
	require.True(t, ok)
	assert.Equal(t, "carol", patch.Key)
	assert.JSONEq(t, `7`, string(patch.Fields["age"]))
}

func TestStreamInvalidPath(t *testing.T) {
	db, s := newStore(t)
	require.NoError(t, db.Set("app/users", 42))

	st, err := s.Stream(context.Background())
	require.NoError(t, err)
	defer st.Close()

	invalid, ok := next(t, st).(*store.InvalidPath)
	require.True(t, ok)
	assert.Equal(t, "/", invalid.Path)
}

var errStop = errors.New("stop")

func TestWatchRenewsAfterAuthRevoked(t *testing.T) {
	db := mock.New(mock.WithAuthToken("old"))
	srv := httptest.NewServer(db.Handler())
	defer srv.Close()
	s, err := store.FromCredentials[user]("", "old", "users", rtdb.WithEndpoint(srv.URL))
	require.NoError(t, err)
	s, err = store.New(store.Config[user]{Client: s.Client(), Path: "users", MinBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	var events []store.Event
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = s.Watch(ctx, func(ev store.Event) error {
		events = append(events, ev)
		switch len(events) {
		case 1:
			db.RevokeAuth()
		case 2:
			db.SetAuthToken("new")
			s.Client().SetAuthToken("new")
			require.NoError(t, db.Set("users/alice", user{Name: "Alice"}))
		case 3:
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)

	require.Len(t, events, 3)
	assert.IsType(t, &store.Reset[user]{}, events[0])
	assert.IsType(t, &store.AuthRevoked{}, events[1])
	reset, ok := events[2].(*store.Reset[user])
	require.True(t, ok)
	assert.Equal(t, map[string]user{"alice": {Name: "Alice"}}, reset.Values)
}

func TestWatchEndsOnCancel(t *testing.T) {
	db, s := newStore(t)

	var opened atomic.Int32
	err := s.Watch(context.Background(), func(ev store.Event) error {
		if _, ok := ev.(*store.Reset[user]); ok && opened.Add(1) == 1 {
			db.CancelStreams("Permission denied")
		}
		return nil
	})
	require.ErrorIs(t, err, rtdb.ErrStreamCancelled)
	assert.EqualValues(t, 1, opened.Load())
}

func TestWatchStopsWithContext(t *testing.T) {
	_, s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Watch(ctx, func(ev store.Event) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatchReconnectsAfterDrop(t *testing.T) {
	db := mock.New()
	srv := httptest.NewServer(db.Handler())
	defer srv.Close()
	client, err := rtdb.New("", rtdb.WithEndpoint(srv.URL))
	require.NoError(t, err)
	s, err := store.New(store.Config[json.RawMessage]{Client: client, Path: "x", MinBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	resets := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.Watch(ctx, func(ev store.Event) error {
		if _, ok := ev.(*store.Reset[json.RawMessage]); !ok {
			return nil
		}
		resets++
		if resets == 2 {
			return errStop
		}
		// Drop the connection without a cancel frame.
		srv.CloseClientConnections()
		return nil
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, 2, resets)
}

func TestWatchBackoffGrowsWhenStreamsEndAfterSnapshot(t *testing.T) {
	var (
		mu     sync.Mutex
		opened []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		opened = append(opened, time.Now())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: put\ndata: {\"path\":\"/\",\"data\":{}}\n\n")
	}))
	defer srv.Close()
	client, err := rtdb.New("", rtdb.WithEndpoint(srv.URL))
	require.NoError(t, err)
	s, err := store.New(store.Config[json.RawMessage]{
		Client:     client,
		Path:       "x",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: time.Second,
	})
	require.NoError(t, err)

	resets := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = s.Watch(ctx, func(ev store.Event) error {
		if _, ok := ev.(*store.Reset[json.RawMessage]); ok {
			resets++
		}
		if resets == 5 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, opened, 5)
	// Delays run 10, 20, 40 and 80ms with 20% jitter.
	assert.GreaterOrEqual(t, opened[4].Sub(opened[3]), 60*time.Millisecond)
}
