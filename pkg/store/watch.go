package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Skycoder42/firebox/internal/httpx"
	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// handlerError marks an error returned by the Watch handler so it is passed
// through instead of triggering a reconnect.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }

// Watch streams the store location and calls handler for every event until
// ctx is cancelled or handler returns an error, which Watch then returns.
//
// The stream is reopened with exponential backoff when the server ends it,
// when the connection fails and after an *AuthRevoked event, which handler
// sees first so it can install a fresh token. Every reopened stream starts
// with a *Reset. Other database errors such as a cancelled stream or a
// rejected token end Watch.
func (s *Store[T]) Watch(ctx context.Context, handler func(Event) error) error {
	backoff := httpx.NewBackoff(s.minBackoff, s.maxBackoff, 0.2)
	for {
		err := s.watchOnce(ctx, handler, backoff)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if !reconnectable(err) {
			return err
		}

		delay := backoff.Next()
		s.logger.Debug("store watch reconnecting", "path", s.path, "delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// watchOnce runs one stream to its end. It returns nil when the server closed
// the stream or revoked its credential.
func (s *Store[T]) watchOnce(ctx context.Context, handler func(Event) error, backoff *httpx.Backoff) error {
	stream, err := s.Stream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	// The backoff restarts only once a stream delivers more than its initial
	// snapshot.
	snapshot := true
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(ev); err != nil {
			return &handlerError{err: err}
		}
		if _, ok := ev.(*AuthRevoked); ok {
			return nil
		}
		if !snapshot {
			backoff.Reset()
		}
		snapshot = false
	}
}

func reconnectable(err error) bool {
	if err == nil {
		return true
	}
	var transportErr *rtdb.TransportError
	return errors.As(err, &transportErr)
}
