package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing span/attribute names for the coordination kernel, mirroring the
// teacher's internal/domain/agent/react/tracing.go naming convention.
const (
	traceScope = "marcus.core"

	SpanRequestNextTask = "marcus.request_next_task"
	SpanSwitchProject   = "marcus.switch_project"
	SpanReconcilerRun   = "marcus.reconciler.run"

	AttrCorrelationID = "marcus.correlation_id"
	AttrAgentID       = "marcus.agent_id"
	AttrProjectID     = "marcus.project_id"
	AttrTaskID        = "marcus.task_id"
	AttrStatus        = "marcus.status"
)

// StartSpan starts a span under the kernel's tracer scope, tagging it with
// a correlation id so it threads through to any error or event the
// operation produces.
func StartSpan(ctx context.Context, name, correlationID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	if correlationID != "" {
		spanAttrs = append(spanAttrs, attribute.String(AttrCorrelationID, correlationID))
	}
	spanAttrs = append(spanAttrs, attrs...)
	return otel.Tracer(traceScope).Start(ctx, name, trace.WithAttributes(spanAttrs...))
}

// EndSpan records err (if any) on span and sets its final status.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(AttrStatus, "success"))
}
