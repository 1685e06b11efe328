package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "colivrt"

// Config contains metrics configuration.
type Config struct {
	// Namespace is the prometheus namespace for all metrics. If empty, defaults to "colivrt".
	Namespace string
	// ConstLabels are labels that will be added to all metrics as constant labels.
	ConstLabels map[string]string
	// Registerer is the prometheus registerer to use. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// Registry holds realtime client metrics. A nil *Registry is valid and
// records nothing, so components can be built without metrics in tests.
type Registry struct {
	config Config

	// Connection metrics
	connectsTotal      *prometheus.CounterVec
	disconnectsTotal   *prometheus.CounterVec
	connectErrorsTotal prometheus.Counter
	connected          prometheus.Gauge

	// Relay metrics
	relayedEventsTotal  *prometheus.CounterVec
	listenerPanicsTotal *prometheus.CounterVec
	droppedIntentsTotal *prometheus.CounterVec

	// Bridge metrics
	notificationsTotal prometheus.Counter
	toastsTotal        prometheus.Counter
	refetchDuration    *prometheus.HistogramVec
}

// New creates all metrics and registers them with the configured registerer.
func New(cfg Config) (*Registry, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultMetricsNamespace
	}

	r := &Registry{config: cfg}

	r.connectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "connection",
		Name:        "connects_total",
		Help:        "Number of successful realtime connects by transport.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"transport"})
	r.disconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "connection",
		Name:        "disconnects_total",
		Help:        "Number of realtime disconnects by reason.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"reason"})
	r.connectErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "connection",
		Name:        "connect_errors_total",
		Help:        "Number of failed connection attempts.",
		ConstLabels: cfg.ConstLabels,
	})
	r.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "connection",
		Name:        "connected",
		Help:        "1 when the realtime connection is up.",
		ConstLabels: cfg.ConstLabels,
	})
	r.relayedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "relay",
		Name:        "events_total",
		Help:        "Number of events dispatched to listeners by event name.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"event"})
	r.listenerPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "relay",
		Name:        "listener_panics_total",
		Help:        "Number of recovered listener panics by event name.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"event"})
	r.droppedIntentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "chat",
		Name:        "dropped_intents_total",
		Help:        "Number of outbound intents skipped because a precondition was not met.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"intent", "reason"})
	r.notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "bridge",
		Name:        "notifications_total",
		Help:        "Number of notifications bridged to the application bus.",
		ConstLabels: cfg.ConstLabels,
	})
	r.toastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "bridge",
		Name:        "toasts_total",
		Help:        "Number of toasts shown.",
		ConstLabels: cfg.ConstLabels,
	})
	r.refetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   "bridge",
		Name:        "refetch_duration_seconds",
		Help:        "Duration of authoritative notification refetches.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: cfg.ConstLabels,
	}, []string{"result"})

	var err error
	if r.connectsTotal, err = register(registerer, r.connectsTotal); err != nil {
		return nil, err
	}
	if r.disconnectsTotal, err = register(registerer, r.disconnectsTotal); err != nil {
		return nil, err
	}
	if r.connectErrorsTotal, err = register(registerer, r.connectErrorsTotal); err != nil {
		return nil, err
	}
	if r.connected, err = register(registerer, r.connected); err != nil {
		return nil, err
	}
	if r.relayedEventsTotal, err = register(registerer, r.relayedEventsTotal); err != nil {
		return nil, err
	}
	if r.listenerPanicsTotal, err = register(registerer, r.listenerPanicsTotal); err != nil {
		return nil, err
	}
	if r.droppedIntentsTotal, err = register(registerer, r.droppedIntentsTotal); err != nil {
		return nil, err
	}
	if r.notificationsTotal, err = register(registerer, r.notificationsTotal); err != nil {
		return nil, err
	}
	if r.toastsTotal, err = register(registerer, r.toastsTotal); err != nil {
		return nil, err
	}
	if r.refetchDuration, err = register(registerer, r.refetchDuration); err != nil {
		return nil, err
	}
	return r, nil
}

// register registers c or returns the collector registered earlier under the
// same descriptor, so several components may share one registerer.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) (T, error) {
	if err := registerer.Register(c); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			if existing, ok := alreadyRegistered.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
