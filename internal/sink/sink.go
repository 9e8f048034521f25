// File: internal/sink/sink.go
//
// Action sinks. A sink receives the actions the recorder emits: Perform is
// the committing round-trip, Record the fire-and-forget channel.
package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/darkfathom/scribe-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stream writes every action as one JSON line. It performs nothing; it only
// makes the action visible on the wire.
type Stream struct {
	log *zap.Logger
	mu  sync.Mutex
	w   io.Writer
}

// NewStream builds a JSON-lines sink over w.
func NewStream(w io.Writer, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{log: log.Named("stream"), w: w}
}

// Perform writes the action and acknowledges immediately.
func (s *Stream) Perform(_ context.Context, a schemas.Action) error {
	return s.write(a)
}

// Record writes the action; failures are logged, not returned.
func (s *Stream) Record(a schemas.Action) {
	if err := s.write(a); err != nil {
		s.log.Warn("failed to write recorded action", zap.Error(err))
	}
}

func (s *Stream) write(a schemas.Action) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	return nil
}

// Chain fans an action out to several sinks in order. Perform returns the
// first error but still reaches every sink.
type Chain struct {
	sinks []Sink
}

// Sink mirrors the recorder-side contract so implementations here satisfy it
// without an import cycle.
type Sink interface {
	Perform(ctx context.Context, action schemas.Action) error
	Record(action schemas.Action)
}

// NewChain builds a fan-out sink.
func NewChain(sinks ...Sink) *Chain {
	return &Chain{sinks: sinks}
}

func (c *Chain) Perform(ctx context.Context, a schemas.Action) error {
	var first error
	for _, s := range c.sinks {
		if err := s.Perform(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Chain) Record(a schemas.Action) {
	for _, s := range c.sinks {
		s.Record(a)
	}
}
