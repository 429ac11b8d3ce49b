package telemetry

import (
	"context"
	"maps"
	"runtime/pprof"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys.
const (
	// ProfilingLabelComponent is the engine or service running the work.
	ProfilingLabelComponent = "component"
	// ProfilingLabelOperation is the label key for the operation name.
	ProfilingLabelOperation = "operation"
	// ProfilingLabelMode is the reconciliation mode or bulk run flavour.
	ProfilingLabelMode = "mode"
	// ProfilingLabelRegion is the label key for code regions (e.g., "db_query", "allocation_plan").
	ProfilingLabelRegion = "region"
)

// MaxLabelValueLength is the maximum allowed length for label values.
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped from profiling labels. Entity identifiers
// belong on spans and log lines instead.
//
// Do not modify this map at runtime.
var HighCardinalityLabels = map[string]bool{
	"account_id":   true,
	"bill_id":      true,
	"bill_number":  true,
	"payment_id":   true,
	"reference":    true,
	"meter_id":     true,
	"reading_id":   true,
	"trace_id":     true,
	"span_id":      true,
	"carry_fwd_id": true,
}

// WithProfilingLabels runs fn with Pyroscope labels attached.
//
// Example usage:
//
//	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels("billing_engine", "generate", ""),
//	    func(c context.Context) {
//	        bill, err = e.generate(c, req)
//	    })
//
// The labels map is copied, so the caller may reuse it afterwards.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	labelPairs := sanitizeLabels(maps.Clone(labels))
	if len(labelPairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(labelPairs...), fn)
}

// WithPprofLabels is the same as WithProfilingLabels using the runtime pprof
// API directly, for binaries built without a Pyroscope agent.
func WithPprofLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	labelPairs := sanitizeLabels(maps.Clone(labels))
	if len(labelPairs) == 0 {
		fn(ctx)
		return
	}

	pprof.Do(ctx, pprof.Labels(labelPairs...), fn)
}

// ProfilingScope accumulates labels before running a function.
type ProfilingScope struct {
	labels map[string]string
}

// NewProfilingScope creates a new ProfilingScope with an initial set of labels.
func NewProfilingScope(labels map[string]string) *ProfilingScope {
	scope := &ProfilingScope{labels: make(map[string]string, len(labels))}
	maps.Copy(scope.labels, labels)
	return scope
}

// WithLabel adds a single label to the scope.
func (s *ProfilingScope) WithLabel(key, value string) *ProfilingScope {
	s.labels[key] = value
	return s
}

// WithComponent adds the component label.
func (s *ProfilingScope) WithComponent(component string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelComponent, component)
}

// WithOperation adds the operation label.
func (s *ProfilingScope) WithOperation(operation string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelOperation, operation)
}

// WithMode adds the mode label.
func (s *ProfilingScope) WithMode(mode string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelMode, mode)
}

// WithRegion adds the region label for code regions.
func (s *ProfilingScope) WithRegion(region string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelRegion, region)
}

// Labels returns a copy of the current labels.
func (s *ProfilingScope) Labels() map[string]string {
	return maps.Clone(s.labels)
}

// Run executes the function with the accumulated labels.
func (s *ProfilingScope) Run(ctx context.Context, fn func(context.Context)) {
	WithProfilingLabels(ctx, s.labels, fn)
}

// sanitizeLabels drops empty and high-cardinality labels, truncates long
// values and returns key/value pairs in key order.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" {
			continue
		}

		sanitizedKey := sanitizeLabelKey(key)
		if sanitizedKey == "" || HighCardinalityLabels[sanitizedKey] {
			continue
		}

		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, sanitizedKey, value)
	}

	return pairs
}

// sanitizeLabelKey lowercases a key and keeps only [a-z0-9_].
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)

	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// BillingLabels creates the standard label set for an engine operation.
// Empty values are left out.
func BillingLabels(component, operation, mode string) map[string]string {
	labels := make(map[string]string, 3)
	if component != "" {
		labels[ProfilingLabelComponent] = component
	}
	if operation != "" {
		labels[ProfilingLabelOperation] = operation
	}
	if mode != "" {
		labels[ProfilingLabelMode] = mode
	}
	return labels
}

// OperationLabels creates labels for a named operation.
func OperationLabels(operation string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelOperation] = operation
	maps.Copy(labels, extraLabels)
	return labels
}

// RegionLabels creates labels for a code region.
func RegionLabels(region string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelRegion] = region
	maps.Copy(labels, extraLabels)
	return labels
}
