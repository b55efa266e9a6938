// Package observability wires OpenTelemetry tracing for trainprep. Loads
// are traced as a dataset.load span with one dataset.catalog child and a
// dataset.sample child per sample.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

// Span wraps a trace span and batches its attributes until End
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// StartSpan starts a span named operationName on tracer
func StartSpan(ctx context.Context, tracer trace.Tracer, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case []string:
		attr = attribute.StringSlice(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Finish sets the span status from err and ends it
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.SetAttribute("error.kind", string(errors.TypeOf(err)))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.End()
}

// End records the elapsed time and ends the span
func (s *Span) End() {
	s.attributes = append(s.attributes,
		attribute.Float64("duration_ms", float64(time.Since(s.startTime).Microseconds())/1000))
	s.span.SetAttributes(s.attributes...)
	s.span.End()
}
