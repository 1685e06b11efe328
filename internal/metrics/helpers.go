package metrics

import (
	"time"
)

func (r *Registry) IncConnect(transport string) {
	if r == nil {
		return
	}
	r.connectsTotal.WithLabelValues(transport).Inc()
	r.connected.Set(1)
}

func (r *Registry) IncDisconnect(reason string) {
	if r == nil {
		return
	}
	r.disconnectsTotal.WithLabelValues(reason).Inc()
	r.connected.Set(0)
}

func (r *Registry) IncConnectError() {
	if r == nil {
		return
	}
	r.connectErrorsTotal.Inc()
}

func (r *Registry) IncRelayed(event string) {
	if r == nil {
		return
	}
	r.relayedEventsTotal.WithLabelValues(event).Inc()
}

func (r *Registry) IncListenerPanic(event string) {
	if r == nil {
		return
	}
	r.listenerPanicsTotal.WithLabelValues(event).Inc()
}

func (r *Registry) IncDroppedIntent(intent string, reason string) {
	if r == nil {
		return
	}
	r.droppedIntentsTotal.WithLabelValues(intent, reason).Inc()
}

func (r *Registry) IncNotification() {
	if r == nil {
		return
	}
	r.notificationsTotal.Inc()
}

func (r *Registry) IncToast() {
	if r == nil {
		return
	}
	r.toastsTotal.Inc()
}

// ObserveRefetch observes the duration of an authoritative refetch.
func (r *Registry) ObserveRefetch(started time.Time, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.refetchDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
}
