package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amelia-orch/amelia/internal/events"
)

// OTelSink is an events.Subscriber that turns each WorkflowEvent into an
// immediately-ended OpenTelemetry span, adapted from the teacher's
// OTelEmitter (graph/emit/otel.go): same "one span per point-in-time
// event" shape, widened to WorkflowEvent's domain/agent/correlation
// fields instead of emit.Event's run/node/step triple.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink wraps tracer, typically otel.Tracer("amelia").
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

// Notify implements events.Subscriber.
func (s *OTelSink) Notify(e events.WorkflowEvent) {
	_, span := s.tracer.Start(context.Background(), e.EventType)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("workflow_id", e.WorkflowID),
		attribute.String("domain", string(e.Domain)),
		attribute.Int64("sequence", e.Sequence),
		attribute.String("agent", e.Agent),
	}
	if e.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", e.CorrelationID))
	}
	for k, v := range e.Data {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if e.Level == events.LevelError {
		span.SetStatus(codes.Error, e.Message)
		span.RecordError(fmt.Errorf("%s", e.Message))
	}
}
