package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/vitos/tg_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// Sink receives marshalled event lines. Publish must never block: a slow
// consumer drops its own messages instead of stalling the core.
type Sink interface {
	Name() string
	Publish(data []byte)
}

// Emitter produces the append-only, time-ordered event stream. Emission is
// serialized so sequence numbers and sink delivery order always agree.
type Emitter struct {
	mu     sync.Mutex
	seq    uint64
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewEmitter(logger *zap.Logger) *Emitter {
	return &Emitter{
		logger: logger,
		now:    time.Now,
	}
}

// AddSink registers a delivery target. Not safe to call after loops start
// emitting; register everything during wiring.
func (e *Emitter) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Emit stamps, marshals and fans out one event.
func (e *Emitter) Emit(eventType string, fields map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev := domain.Event{
		Type:   eventType,
		TS:     e.now().Unix(),
		Seq:    e.seq,
		Fields: fields,
	}

	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Error("failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}

	for _, s := range e.sinks {
		s.Publish(data)
	}
}

// LogSink mirrors the stream into the structured log, so events survive even
// with no dashboard attached.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(data []byte) {
	s.logger.Info("event", zap.ByteString("payload", data))
}
