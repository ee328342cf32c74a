// Package metrics records send and delivery statistics with Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/postie/internal/mailer"
)

// Collector implements mailer.Observer.
type Collector struct {
	sends    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
}

// New registers the collector's metrics on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postie_sends_total",
			Help: "Messages dispatched, by result",
		}, []string{"result"}), // sent|dev|halted|failed|invalid
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postie_delivery_attempts_total",
			Help: "Transport delivery attempts, by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postie_send_duration_seconds",
			Help:    "Time spent in Send including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	for _, col := range []prometheus.Collector{c.sends, c.attempts, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveAttempt counts one transport call.
func (c *Collector) ObserveAttempt(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.attempts.WithLabelValues(result).Inc()
}

// ObserveSend counts one finished Send.
func (c *Collector) ObserveSend(res mailer.SendResult, err error, elapsed time.Duration) {
	c.sends.WithLabelValues(Result(res, err)).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// Result maps a send outcome to its metric label.
func Result(res mailer.SendResult, err error) string {
	switch {
	case errors.Is(err, mailer.ErrValidation):
		return "invalid"
	case err != nil:
		return "failed"
	case res.DevMode:
		return "dev"
	case res.Halted:
		return "halted"
	default:
		return "sent"
	}
}

// WriteTextfile writes every metric gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
