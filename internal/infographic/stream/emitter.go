package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrSurfaceNotOpen = errors.New("stream: first event must be SurfaceInit")
	ErrSurfaceOpen    = errors.New("stream: SurfaceInit already emitted")
	ErrDisconnected   = errors.New("stream: caller disconnected")
)

// Emitter writes progress events as newline-delimited JSON. It is owned by a
// single goroutine. After the first write failure, or once ctx is done, the
// emitter reports itself disconnected and drops further events.
type Emitter struct {
	ctx     context.Context
	w       io.Writer
	flusher http.Flusher
	opened  bool
	err     error
	count   int
}

// NewEmitter returns an Emitter bound to the caller's context. If w
// implements http.Flusher every event is flushed as soon as it is written.
func NewEmitter(ctx context.Context, w io.Writer) *Emitter {
	e := &Emitter{ctx: ctx, w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Emit writes one event.
func (e *Emitter) Emit(ev Event) error {
	if _, ok := ev.(SurfaceInit); ok {
		if e.opened {
			return ErrSurfaceOpen
		}
		e.opened = true
	} else if !e.opened {
		return ErrSurfaceNotOpen
	}

	if e.Disconnected() {
		return ErrDisconnected
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stream: failed to encode event: %w", err)
	}
	b = append(b, '\n')
	if _, err := e.w.Write(b); err != nil {
		e.err = err
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	e.count++
	return nil
}

// Logf emits a Log event without a category.
func (e *Emitter) Logf(format string, args ...any) error {
	return e.Emit(Log{Message: fmt.Sprintf(format, args...)})
}

// Disconnected reports whether the caller is gone.
func (e *Emitter) Disconnected() bool {
	if e.err != nil {
		return true
	}
	return e.ctx.Err() != nil
}

// Count returns the number of events written.
func (e *Emitter) Count() int { return e.count }
