package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline metrics through Prometheus.
type Recorder struct {
	refreshDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	tailMAE         *prometheus.GaugeVec
	tradesTotal     *prometheus.CounterVec
	subscribers     prometheus.Gauge
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates a recorder on a specific registerer.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_refresh_duration_seconds",
				Help:    "Duration of pipeline refresh stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_price",
				Help: "Last observed price for a ticker",
			},
			[]string{"ticker"},
		),
		tailMAE: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_tail_mae",
				Help: "Tail mean absolute error per forecast horizon",
			},
			[]string{"ticker", "horizon"},
		),
		tradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_trades_total",
				Help: "Total number of simulated trades executed",
			},
			[]string{"kind"},
		),
		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_subscribers",
				Help: "Current number of snapshot subscribers",
			},
		),
	}
}

// RecordRefresh records the duration of one refresh stage.
func (r *Recorder) RecordRefresh(stage string, seconds float64) {
	r.refreshDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a ticker.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

// RecordTailMAE records the tail MAE for a horizon.
func (r *Recorder) RecordTailMAE(ticker, horizon string, mae float64) {
	r.tailMAE.WithLabelValues(ticker, horizon).Set(mae)
}

// RecordTrade records an executed trade.
func (r *Recorder) RecordTrade(kind string) {
	r.tradesTotal.WithLabelValues(kind).Inc()
}

// SetSubscribers records the current subscriber count.
func (r *Recorder) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}
