// Package logsink implements the "test" notification sink, which writes payloads to the log
// instead of delivering them.
package logsink

import (
	"context"

	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/notify"
	"go.uber.org/zap"
)

// Sink logs every payload at info level.
type Sink struct {
	logger *logging.Logger
}

// New returns a Sink writing to logger.
func New(logger *logging.Logger) *Sink {
	return &Sink{logger: logger}
}

// Validate implements the notify.Sink interface. A Sink is always configured.
func (s *Sink) Validate() error {
	return nil
}

// Send implements the notify.Sink interface.
func (s *Sink) Send(_ context.Context, p *notify.Payload) error {
	s.logger.Infow(p.Header,
		zap.Stringer("dispatch_id", p.DispatchID),
		zap.String("error_id", p.ErrorID),
		zap.String("occurrence_id", p.OccurrenceID),
		zap.String("summary", p.Summary),
		zap.String("location", p.Location),
		zap.Uint64("suppressed", p.SuppressedCount),
		zap.String("url", p.URL))

	return nil
}
