package collective

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("NewPrometheusMetrics failed: %v", err)
	}

	attrs := map[string]string{labelDevice: "0", labelGroupMode: "cross_replica"}
	peerAttrs := map[string]string{labelDevice: "0", labelGroupMode: "cross_replica", labelPeer: "1"}

	metrics.ExchangeStarted(attrs)
	metrics.ExchangeStarted(attrs)
	metrics.ExchangeCompleted(attrs)
	metrics.ExchangeFailed("staging", errors.New("stream wedged"), attrs)
	metrics.StagingCompleted(attrs)
	metrics.SendPosted(peerAttrs)
	metrics.ReceivePosted(peerAttrs)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	cases := []struct {
		name  string
		label string
		value string
		want  float64
	}{
		{"collectives_ragged_exchange_started_total", labelDevice, "0", 2},
		{"collectives_ragged_exchange_completed_total", labelDevice, "0", 1},
		{"collectives_ragged_exchange_failed_total", labelStage, "staging", 1},
		{"collectives_ragged_staging_completed_total", labelDevice, "0", 1},
		{"collectives_ragged_send_posted_total", labelPeer, "1", 1},
		{"collectives_ragged_receive_posted_total", labelPeer, "1", 1},
	}
	for _, tc := range cases {
		got, ok := findCounterValue(families, tc.name, tc.label, tc.value)
		if !ok {
			t.Fatalf("counter %s with %s=%q not found", tc.name, tc.label, tc.value)
		}
		if got != tc.want {
			t.Fatalf("counter %s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPrometheusMetricsReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg}); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	metrics, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("second registration must reuse existing collectors: %v", err)
	}

	attrs := map[string]string{labelDevice: "2", labelGroupMode: "flattened_id"}
	metrics.ExchangeStarted(attrs)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if got, ok := findCounterValue(families, "collectives_ragged_exchange_started_total", labelDevice, "2"); !ok || got != 1 {
		t.Fatalf("reused counter not incremented: found %v value %v", ok, got)
	}
}

func findCounterValue(families []*dto.MetricFamily, name, labelName, labelValue string) (float64, bool) {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if pair.GetName() == labelName && pair.GetValue() == labelValue {
					return m.GetCounter().GetValue(), true
				}
			}
		}
	}
	return 0, false
}
