package authfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	tokens []string
}

func (s *recordingSink) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
}

func (s *recordingSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func writeToken(t *testing.T, path, token string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(token), 0o600))
}

func TestNewValidates(t *testing.T) {
	_, err := New("", &recordingSink{})
	require.Error(t, err)
	_, err = New("token", nil)
	require.Error(t, err)
}

func TestLoadTrimsAndDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	writeToken(t, path, "  abc\n")
	sink := &recordingSink{}
	w, err := New(path, sink)
	require.NoError(t, err)

	require.NoError(t, w.Load())
	require.NoError(t, w.Load())
	assert.Equal(t, []string{"abc"}, sink.tokens)

	writeToken(t, path, "\n")
	require.ErrorIs(t, w.Load(), ErrEmptyToken)
	assert.Equal(t, "abc", sink.last())
}

func TestLoadMissingFile(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing"), &recordingSink{})
	require.NoError(t, err)
	require.ErrorIs(t, w.Load(), os.ErrNotExist)
}

func TestRunFollowsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	writeToken(t, path, "first")
	sink := &recordingSink{}
	w, err := New(path, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.last() == "first" }, 5*time.Second, 10*time.Millisecond)

	writeToken(t, path, "second")
	require.Eventually(t, func() bool { return sink.last() == "second" }, 5*time.Second, 10*time.Millisecond)

	// Atomic replacement through a rename.
	tmp := filepath.Join(dir, "token.tmp")
	writeToken(t, tmp, "third")
	require.NoError(t, os.Rename(tmp, path))
	require.Eventually(t, func() bool { return sink.last() == "third" }, 5*time.Second, 10*time.Millisecond)

	// Unrelated files in the directory are ignored.
	before := sink.count()
	writeToken(t, filepath.Join(dir, "other"), "noise")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, sink.count())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRequiresInitialToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	writeToken(t, path, "")
	w, err := New(path, &recordingSink{})
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyToken)
}
