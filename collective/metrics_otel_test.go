package collective

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTelMetricsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewOTelMetrics(OTelMetricsOptions{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewOTelMetrics failed: %v", err)
	}

	attrs := map[string]string{labelDevice: "0", labelGroupMode: "cross_partition"}
	peerAttrs := map[string]string{labelDevice: "0", labelGroupMode: "cross_partition", labelPeer: "3"}

	metrics.ExchangeStarted(attrs)
	metrics.ExchangeCompleted(attrs)
	metrics.ExchangeFailed("transfer", errors.New("peer gone"), attrs)
	metrics.StagingCompleted(attrs)
	metrics.SendPosted(peerAttrs)
	metrics.SendPosted(peerAttrs)
	metrics.ReceivePosted(peerAttrs)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	cases := []struct {
		name string
		attr attribute.KeyValue
		want int64
	}{
		{"collectives.ragged.exchange.started", attribute.String(labelDevice, "0"), 1},
		{"collectives.ragged.exchange.completed", attribute.String(labelDevice, "0"), 1},
		{"collectives.ragged.exchange.failed", attribute.String(labelStage, "transfer"), 1},
		{"collectives.ragged.staging.completed", attribute.String(labelDevice, "0"), 1},
		{"collectives.ragged.send.posted", attribute.String(labelPeer, "3"), 2},
		{"collectives.ragged.receive.posted", attribute.String(labelPeer, "3"), 1},
	}
	for _, tc := range cases {
		got, ok := otelCounterValue(rm, tc.name, tc.attr)
		if !ok {
			t.Fatalf("counter %s with %v not found", tc.name, tc.attr)
		}
		if got != tc.want {
			t.Fatalf("counter %s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestOTelMetricsCustomInstrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewOTelMetrics(OTelMetricsOptions{
		MeterProvider:       provider,
		InstrumentationName: "custom/scope",
	})
	if err != nil {
		t.Fatalf("NewOTelMetrics failed: %v", err)
	}
	metrics.ExchangeStarted(map[string]string{labelDevice: "1", labelGroupMode: "cross_replica"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name == "custom/scope" {
			return
		}
	}
	t.Fatal("instrumentation scope custom/scope not found")
}

func otelCounterValue(rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) (int64, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if v, found := point.Attributes.Value(attr.Key); found && v == attr.Value {
					return point.Value, true
				}
			}
		}
	}
	return 0, false
}
