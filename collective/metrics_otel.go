package collective

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter             metric.Meter
	exchangeStarted   metric.Int64Counter
	exchangeCompleted metric.Int64Counter
	exchangeFailed    metric.Int64Counter
	stagingCompleted  metric.Int64Counter
	sendPosted        metric.Int64Counter
	receivePosted     metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/collectives-go/collective"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	exchangeStarted, err := meter.Int64Counter("collectives.ragged.exchange.started")
	if err != nil {
		return nil, err
	}
	exchangeCompleted, err := meter.Int64Counter("collectives.ragged.exchange.completed")
	if err != nil {
		return nil, err
	}
	exchangeFailed, err := meter.Int64Counter("collectives.ragged.exchange.failed")
	if err != nil {
		return nil, err
	}
	stagingCompleted, err := meter.Int64Counter("collectives.ragged.staging.completed")
	if err != nil {
		return nil, err
	}
	sendPosted, err := meter.Int64Counter("collectives.ragged.send.posted")
	if err != nil {
		return nil, err
	}
	receivePosted, err := meter.Int64Counter("collectives.ragged.receive.posted")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:             meter,
		exchangeStarted:   exchangeStarted,
		exchangeCompleted: exchangeCompleted,
		exchangeFailed:    exchangeFailed,
		stagingCompleted:  stagingCompleted,
		sendPosted:        sendPosted,
		receivePosted:     receivePosted,
	}, nil
}

// ExchangeStarted records the start of one ragged exchange.
func (o *OTelMetrics) ExchangeStarted(attrs map[string]string) {
	o.exchangeStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// ExchangeCompleted records a successful ragged exchange.
func (o *OTelMetrics) ExchangeCompleted(attrs map[string]string) {
	o.exchangeCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// ExchangeFailed counts failed exchanges by stage.
func (o *OTelMetrics) ExchangeFailed(stage string, _ error, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelStage, stage))
	o.exchangeFailed.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// StagingCompleted records a completed index staging round-trip.
func (o *OTelMetrics) StagingCompleted(attrs map[string]string) {
	o.stagingCompleted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// SendPosted records one per-peer send enqueued inside the group scope.
func (o *OTelMetrics) SendPosted(attrs map[string]string) {
	o.sendPosted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithPeer(attrs)...))
}

// ReceivePosted records one per-peer receive enqueued inside the group scope.
func (o *OTelMetrics) ReceivePosted(attrs map[string]string) {
	o.receivePosted.Add(context.Background(), 1, metric.WithAttributes(otelAttrsWithPeer(attrs)...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String(labelDevice, attrs[labelDevice]),
		attribute.String(labelGroupMode, attrs[labelGroupMode]),
	}
	return kvs
}

func otelAttrsWithPeer(attrs map[string]string) []attribute.KeyValue {
	kvs := otelAttrs(attrs)
	if v := attrs[labelPeer]; v != "" {
		kvs = append(kvs, attribute.String(labelPeer, v))
	}
	return kvs
}
