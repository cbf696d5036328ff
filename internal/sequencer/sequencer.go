// Package sequencer stamps committed observations with monotonically
// increasing sequence IDs and forwards them downstream. The pair
// controller publishes under its lock, so sequence order matches the
// order in which state changes committed.
package sequencer

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
)

// Sequencer implements domain.ObservationSink.
type Sequencer struct {
	seq    atomic.Uint64
	out    chan *domain.Observation
	logger *zap.Logger
}

// New creates a sequencer with a buffered downstream channel.
func New(bufferSize int, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		out:    make(chan *domain.Observation, bufferSize),
		logger: logger.Named("sequencer"),
	}
}

// Publish stamps the observation and hands it downstream without
// blocking the committing operation. A full channel drops the record
// for delivery but never stalls the book.
func (s *Sequencer) Publish(obs *domain.Observation) {
	obs.SequenceID = s.seq.Add(1)
	select {
	case s.out <- obs:
	default:
		s.logger.Warn("observation channel full, dropping record",
			zap.Uint64("sequence_id", obs.SequenceID),
			zap.String("kind", string(obs.Kind)),
		)
	}
}

// Out is the downstream observation stream.
func (s *Sequencer) Out() <-chan *domain.Observation {
	return s.out
}

// Current returns the last assigned sequence ID.
func (s *Sequencer) Current() uint64 {
	return s.seq.Load()
}
