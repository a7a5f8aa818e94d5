package events

import "go.uber.org/zap"

// LogSink is a Subscriber that forwards events into a zap logger at the
// level Classify assigns their event_type, adapted from the teacher's
// LogEmitter (graph/emit/log.go) — same "events are also a readable log
// tail" role, but riding the Bus's fan-out instead of being wired directly
// into the engine.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger. A nil logger is replaced with zap.NewNop so a
// LogSink is always safe to construct and subscribe.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Notify implements Subscriber.
func (s *LogSink) Notify(e WorkflowEvent) {
	fields := []zap.Field{
		zap.String("workflow_id", e.WorkflowID),
		zap.Int64("sequence", e.Sequence),
		zap.String("agent", e.Agent),
		zap.String("event_type", e.EventType),
	}
	if e.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", e.CorrelationID))
	}
	for k, v := range e.Data {
		fields = append(fields, zap.Any(k, v))
	}

	level := e.Level
	if level == "" {
		level = Classify(e.EventType)
	}
	switch level {
	case LevelError:
		s.logger.Error(e.Message, fields...)
	case LevelDebug:
		s.logger.Debug(e.Message, fields...)
	default:
		s.logger.Info(e.Message, fields...)
	}
}
