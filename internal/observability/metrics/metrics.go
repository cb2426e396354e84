// Package metrics exposes gateway, cache, delivery and reminder pass counters
// to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchbot/internal/cache"
	"matchbot/internal/reminder"
)

const namespace = "matchbot"

// Collector implements the observer hooks of provider, cache, notifier and
// reminder.
type Collector struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerRetries  *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	stageMessages    *prometheus.CounterVec
	passes           *prometheus.CounterVec
	passDuration     prometheus.Histogram
	passFailures     prometheus.Counter
	lastPass         prometheus.Gauge
	botRequests      *prometheus.CounterVec
	botLatency       *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider HTTP attempts by resource and status code (0 for network errors).",
		}, []string{"resource", "status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_seconds",
			Help:      "Provider HTTP attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Provider retries by reason.",
		}, []string{"resource", "reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Telegram deliveries by result.",
		}, []string{"result"}),
		stageMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_messages_total",
			Help:      "Reminder messages by stage and result.",
		}, []string{"stage", "result"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_passes_total",
			Help:      "Reminder passes by outcome.",
		}, []string{"outcome"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_pass_seconds",
			Help:      "Reminder pass duration.",
			Buckets:   prometheus.DefBuckets,
		}),
		passFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_delivery_failures_total",
			Help:      "Reminder deliveries that failed inside a pass.",
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminder_last_pass_timestamp_seconds",
			Help:      "Unix time of the last finished reminder pass.",
		}),
		botRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_requests_total",
			Help:      "Handled commands and callbacks by route and result.",
		}, []string{"route", "result"}),
		botLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_request_seconds",
			Help:      "Command and callback handling latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.providerRequests,
		c.providerLatency,
		c.providerRetries,
		c.cacheLookups,
		c.deliveries,
		c.stageMessages,
		c.passes,
		c.passDuration,
		c.passFailures,
		c.lastPass,
		c.botRequests,
		c.botLatency,
	)
	return c
}

func (c *Collector) ObserveAttempt(resource string, status int, d time.Duration) {
	c.providerRequests.WithLabelValues(resource, strconv.Itoa(status)).Inc()
	c.providerLatency.WithLabelValues(resource).Observe(d.Seconds())
}

func (c *Collector) ObserveRequest(route string, ok bool, d time.Duration) {
	c.botRequests.WithLabelValues(route, result(ok)).Inc()
	c.botLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collector) ObserveRetry(resource, reason string) {
	c.providerRetries.WithLabelValues(resource, reason).Inc()
}

func (c *Collector) ObserveDelivery(ok, gone bool) {
	switch {
	case ok:
		c.deliveries.WithLabelValues("ok").Inc()
	case gone:
		c.deliveries.WithLabelValues("gone").Inc()
	default:
		c.deliveries.WithLabelValues("error").Inc()
	}
}

func (c *Collector) ObserveStage(stage string, ok bool) {
	c.stageMessages.WithLabelValues(stage, result(ok)).Inc()
}

func (c *Collector) ObservePass(r reminder.PassResult) {
	outcome := "ok"
	if r.Error != "" {
		outcome = "aborted"
	}
	c.passes.WithLabelValues(outcome).Inc()
	c.passDuration.Observe(r.Duration.Seconds())
	c.passFailures.Add(float64(r.Failures))
	c.lastPass.Set(float64(r.At.Unix()))
}

// Cache returns a cache observer labelled with name.
func (c *Collector) Cache(name string) cache.Observer {
	return cacheObserver{c: c.cacheLookups, name: name}
}

type cacheObserver struct {
	c    *prometheus.CounterVec
	name string
}

func (o cacheObserver) ObserveLookup(hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	o.c.WithLabelValues(o.name, r).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
