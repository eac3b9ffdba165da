package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsHighCardinalityLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("household_code", "HH-2024-0001"),
		attribute.String("method", "CASH"),
		attribute.String("reason", "no_usage_record"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("household_code"), attr.Key)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordBillGenerated(ctx)
	m.RecordBillSkipped(ctx, "x")
	m.RecordPayment(ctx, "CASH")
	m.RecordBillPaid(ctx)
	m.RecordSequenceRetry(ctx, "BILL")
	m.RecordDispatchFailure(ctx, "bill.generated")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordSequenceRetry(context.Background(), "RCP")
}
