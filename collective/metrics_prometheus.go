package collective

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	exchangeStarted   *prometheus.CounterVec
	exchangeCompleted *prometheus.CounterVec
	exchangeFailed    *prometheus.CounterVec
	stagingCompleted  *prometheus.CounterVec
	sendPosted        *prometheus.CounterVec
	receivePosted     *prometheus.CounterVec
}

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		exchangeStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_exchange_started_total",
			Help:        "Number of ragged all-to-all exchanges started",
			ConstLabels: opts.ConstLabels,
		}, exchangeLabelKeys),
		exchangeCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_exchange_completed_total",
			Help:        "Number of ragged all-to-all exchanges completed successfully",
			ConstLabels: opts.ConstLabels,
		}, exchangeLabelKeys),
		exchangeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_exchange_failed_total",
			Help:        "Number of ragged all-to-all exchanges that failed, by stage",
			ConstLabels: opts.ConstLabels,
		}, failureLabelKeys),
		stagingCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_staging_completed_total",
			Help:        "Number of completed index staging round-trips",
			ConstLabels: opts.ConstLabels,
		}, exchangeLabelKeys),
		sendPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_send_posted_total",
			Help:        "Number of per-peer sends posted",
			ConstLabels: opts.ConstLabels,
		}, transferLabelKeys),
		receivePosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "collectives_ragged_receive_posted_total",
			Help:        "Number of per-peer receives posted",
			ConstLabels: opts.ConstLabels,
		}, transferLabelKeys),
	}

	var err error
	if p.exchangeStarted, err = registerCounterVec(reg, p.exchangeStarted); err != nil {
		return nil, err
	}
	if p.exchangeCompleted, err = registerCounterVec(reg, p.exchangeCompleted); err != nil {
		return nil, err
	}
	if p.exchangeFailed, err = registerCounterVec(reg, p.exchangeFailed); err != nil {
		return nil, err
	}
	if p.stagingCompleted, err = registerCounterVec(reg, p.stagingCompleted); err != nil {
		return nil, err
	}
	if p.sendPosted, err = registerCounterVec(reg, p.sendPosted); err != nil {
		return nil, err
	}
	if p.receivePosted, err = registerCounterVec(reg, p.receivePosted); err != nil {
		return nil, err
	}

	return p, nil
}

var (
	exchangeLabelKeys = []string{labelDevice, labelGroupMode}
	failureLabelKeys  = []string{labelDevice, labelGroupMode, labelStage}
	transferLabelKeys = []string{labelDevice, labelGroupMode, labelPeer}
)

func (p *PrometheusMetrics) ExchangeStarted(attrs map[string]string) {
	p.exchangeStarted.With(labels(attrs, exchangeLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) ExchangeCompleted(attrs map[string]string) {
	p.exchangeCompleted.With(labels(attrs, exchangeLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) ExchangeFailed(stage string, _ error, attrs map[string]string) {
	labs := labels(attrs, failureLabelKeys...)
	labs[labelStage] = stage
	p.exchangeFailed.With(labs).Inc()
}

func (p *PrometheusMetrics) StagingCompleted(attrs map[string]string) {
	p.stagingCompleted.With(labels(attrs, exchangeLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) SendPosted(attrs map[string]string) {
	p.sendPosted.With(labels(attrs, transferLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) ReceivePosted(attrs map[string]string) {
	p.receivePosted.With(labels(attrs, transferLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
