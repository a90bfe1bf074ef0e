// Package metrics exposes Prometheus metrics for the credential lifecycle:
//
//   - tda_token_exchanges_total{grant,token,result} - token endpoint calls
//   - tda_bootstraps_total{result}                  - interactive logins
//   - tda_renewal_ticks_total{status}               - scheduled renewal checks
//   - tda_renewal_errors_total                      - ticks that returned an error
//   - tda_access_token_expiry_timestamp_seconds     - current access token expiry
//   - tda_refresh_token_expiry_timestamp_seconds    - current refresh token expiry
//   - tda_next_renewal_delay_seconds                - delay until the next tick
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder groups the collectors registered for one client instance.
type Recorder struct {
	exchanges     *prometheus.CounterVec
	bootstraps    *prometheus.CounterVec
	ticks         *prometheus.CounterVec
	tickErrors    prometheus.Counter
	accessExpiry  prometheus.Gauge
	refreshExpiry prometheus.Gauge
	nextDelay     prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on promhttp.Handler().
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tda_token_exchanges_total",
				Help: "Token endpoint calls by grant type, token and result",
			},
			[]string{"grant", "token", "result"},
		),
		bootstraps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tda_bootstraps_total",
				Help: "Interactive authorization bootstraps by result",
			},
			[]string{"result"},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tda_renewal_ticks_total",
				Help: "Renewal checks by classified expiry status",
			},
			[]string{"status"},
		),
		tickErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tda_renewal_errors_total",
				Help: "Renewal checks that failed",
			},
		),
		accessExpiry: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tda_access_token_expiry_timestamp_seconds",
				Help: "Unix time at which the current access token expires",
			},
		),
		refreshExpiry: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tda_refresh_token_expiry_timestamp_seconds",
				Help: "Unix time at which the current refresh token expires",
			},
		),
		nextDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tda_next_renewal_delay_seconds",
				Help: "Delay until the next scheduled renewal check",
			},
		),
	}

	reg.MustRegister(r.exchanges, r.bootstraps, r.ticks, r.tickErrors,
		r.accessExpiry, r.refreshExpiry, r.nextDelay)

	return r
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveExchange counts one token endpoint call.
func (r *Recorder) ObserveExchange(grant, token string, err error) {
	if r == nil {
		return
	}
	r.exchanges.WithLabelValues(grant, token, resultLabel(err)).Inc()
}

// ObserveBootstrap counts one interactive authorization attempt.
func (r *Recorder) ObserveBootstrap(err error) {
	if r == nil {
		return
	}
	r.bootstraps.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveTick counts one renewal check.
func (r *Recorder) ObserveTick(status string, err error) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(status).Inc()
	if err != nil {
		r.tickErrors.Inc()
	}
}

// SetExpiries publishes the token expiries (unix seconds).
func (r *Recorder) SetExpiries(access, refresh int64) {
	if r == nil {
		return
	}
	r.accessExpiry.Set(float64(access))
	r.refreshExpiry.Set(float64(refresh))
}

// SetNextDelay publishes the delay until the next renewal check.
func (r *Recorder) SetNextDelay(d time.Duration) {
	if r == nil {
		return
	}
	r.nextDelay.Set(d.Seconds())
}
