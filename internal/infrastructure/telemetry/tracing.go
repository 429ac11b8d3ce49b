package telemetry

import (
	"context"
	"fmt"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer of every engine span
const TracerName = "utility-billing"

// Span attribute keys. Metric attributes live in metrics.go.
const (
	SpanAttrAccountID     = "account_id"
	SpanAttrAccountNumber = "account_number"
	SpanAttrMeterID       = "meter_id"
	SpanAttrMeterType     = "meter_type"
	SpanAttrReadingID     = "reading_id"
	SpanAttrPeriod        = "billing_period"

	SpanAttrBillID     = "bill_id"
	SpanAttrBillNumber = "bill_number"
	SpanAttrBillStatus = "bill_status"

	SpanAttrPaymentID       = "payment_id"
	SpanAttrReference       = "payment_reference"
	SpanAttrMode            = "reconciliation_mode"
	SpanAttrCarryForwardID  = "carry_forward_id"
	SpanAttrAmount          = "amount"
	SpanAttrAllocationCount = "allocation_count"

	SpanAttrErrorCode      = "error.code"
	SpanAttrErrorRetryable = "error.retryable"
)

// StartSpan starts an internal span on the billing tracer. keyValues are
// alternating string keys and values, see SetAttributes.
//
//	ctx, span := telemetry.StartSpan(ctx, "billing_engine.load_readings",
//	    telemetry.SpanAttrMeterID, meter.ID)
//	defer span.End()
func StartSpan(ctx context.Context, name string, keyValues ...any) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if attrs := toAttributes(keyValues); len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span named {component}.{operation}, e.g.
// "reconciliation_engine.reconcile".
func StartServiceSpan(ctx context.Context, component, operation string, keyValues ...any) (context.Context, trace.Span) {
	return StartSpan(ctx, component+"."+operation, keyValues...)
}

// SpanFromContext returns the span carried by ctx, or a no-op span
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetAttributes sets alternating key/value pairs on span. Pairs whose key
// is not a string are skipped, as is a trailing key without a value.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttributes(keyValues)...)
}

// SetAttribute sets one attribute on span
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// AddEvent adds a timestamped event with key/value attributes to span
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(toAttributes(keyValues)...))
}

// RecordError records err on span and marks it failed. Domain errors also
// carry their code and whether the caller may retry.
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	if code := shared.ErrorCode(err); code != "" {
		span.SetAttributes(attribute.String(SpanAttrErrorCode, code))
	}
	span.SetAttributes(attribute.Bool(SpanAttrErrorRetryable, shared.IsRetryable(err)))
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful
func SetOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func toAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	return attrs
}

// toAttribute maps a value onto the closest attribute type. UUIDs and
// decimals go through fmt.Stringer so amounts keep their exact digits.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case []int:
		return attribute.IntSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
