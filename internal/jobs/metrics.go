package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Mail kinds produced by the account notifier. Anything else is counted as
// KindOther so a bad payload cannot grow label cardinality.
const (
	KindPasswordSetup        = "password_setup"
	KindWelcome              = "welcome"
	KindPasswordConfirmation = "password_confirmation"
	KindPasswordReset        = "password_reset"
	KindOther                = "other"
)

// Reasons a delivery is dropped without retry.
const (
	DropUndecodable = "undecodable"
	DropInvalid     = "invalid"
)

var knownKinds = map[string]bool{
	KindPasswordSetup:        true,
	KindWelcome:              true,
	KindPasswordConfirmation: true,
	KindPasswordReset:        true,
}

// Metrics counts mail deliveries handled by the worker, per mail kind.
type Metrics struct {
	deliveries *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer means the default
// Prometheus registerer, registered once per process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Delivery instruments one mail task. The kind is unknown until the payload
// decodes, so it starts as KindOther.
type Delivery struct {
	metrics *Metrics
	kind    string
	start   time.Time
}

// Track starts instrumenting a delivery. Safe on nil Metrics.
func (m *Metrics) Track() *Delivery {
	return &Delivery{metrics: m, kind: KindOther, start: time.Now()}
}

// For labels the delivery with the payload's mail kind.
func (d *Delivery) For(kind string) *Delivery {
	d.kind = Normalize(kind)
	return d
}

// Kind returns the label the delivery is counted under.
func (d *Delivery) Kind() string {
	return d.kind
}

// End records a send attempt and returns err untouched. A failed attempt is
// retried by the queue, so it only counts as status "failure".
func (d *Delivery) End(err error) error {
	if d.metrics == nil {
		return err
	}
	status := "sent"
	if err != nil {
		status = "failure"
	}
	d.metrics.deliveries.WithLabelValues(d.kind, status).Inc()
	d.metrics.duration.WithLabelValues(d.kind).Observe(time.Since(d.start).Seconds())
	return err
}

// Drop records a task discarded without a send attempt and returns err
// untouched.
func (d *Delivery) Drop(reason string, err error) error {
	if d.metrics != nil {
		d.metrics.dropped.WithLabelValues(d.kind, reason).Inc()
	}
	return err
}

// Normalize maps kind onto the bounded label set.
func Normalize(kind string) string {
	if knownKinds[kind] {
		return kind
	}
	return KindOther
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_mail_deliveries_total",
		Help: "Mail send attempts by mail kind and status.",
	}, []string{"kind", "status"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_mail_dropped_total",
		Help: "Mail tasks discarded without retry by mail kind and reason.",
	}, []string{"kind", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_mail_delivery_seconds",
		Help:    "Time spent handing a mail to the relay.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})
	registerer.MustRegister(deliveries, dropped, duration)
	return &Metrics{deliveries: deliveries, dropped: dropped, duration: duration}
}
