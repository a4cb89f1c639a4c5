// Package loop is the stream side of the library: a registry that owns
// console streams for their lifetime, and ConsoleStream, a ring-buffered
// non-blocking stream over an inherited descriptor.
//
// The loop owns lifecycle, not readiness dispatch. Streams run their own
// poll loops; console operations layered on top of them (see pkg/tty) are
// plain synchronous calls that never go through a scheduler.
package loop

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrLoopClosed indicates a registration attempt on a closed loop.
	ErrLoopClosed = errors.New("loop closed")

	// ErrAlreadyRegistered indicates the descriptor already has a live
	// stream on this loop.
	ErrAlreadyRegistered = errors.New("descriptor already registered")
)

// Loop owns the console streams bound to it. Registration may happen from
// any goroutine; the registry keeps insertion order so Close tears streams
// down in the order they were registered.
type Loop struct {
	logger *logrus.Logger

	mu      sync.Mutex
	streams *orderedmap.OrderedMap[int, *ConsoleStream]
	closed  bool
}

// New creates an empty loop. A nil logger is replaced with a no-op one.
func New(logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = noopLogger
	}
	return &Loop{
		logger:  logger,
		streams: orderedmap.New[int, *ConsoleStream](),
	}
}

// Register adds s to the loop. Each descriptor may carry at most one live
// stream per loop.
func (l *Loop) Register(s *ConsoleStream) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoopClosed
	}
	if _, ok := l.streams.Get(s.Fd()); ok {
		return fmt.Errorf("fd %d: %w", s.Fd(), ErrAlreadyRegistered)
	}
	l.streams.Set(s.Fd(), s)
	l.logger.WithField("fd", s.Fd()).Debug("stream registered")
	return nil
}

// Unregister removes s from the loop without closing it. Safe to call for
// streams that were never registered.
func (l *Loop) Unregister(s *ConsoleStream) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.streams.Get(s.Fd()); ok && cur == s {
		l.streams.Delete(s.Fd())
		l.logger.WithField("fd", s.Fd()).Debug("stream unregistered")
	}
}

// Len reports how many streams are currently registered.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streams.Len()
}

// Close shuts down every still-registered stream in registration order and
// marks the loop closed. Idempotent; returns the first stream close error.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true

	var pending []*ConsoleStream
	for pair := l.streams.Oldest(); pair != nil; pair = pair.Next() {
		pending = append(pending, pair.Value)
	}
	l.streams = orderedmap.New[int, *ConsoleStream]()
	l.mu.Unlock()

	var firstErr error
	for _, s := range pending {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
