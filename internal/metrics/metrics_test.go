package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(Config{Registerer: reg, ConstLabels: map[string]string{"app": "test"}})
	require.NoError(t, err)

	r.IncConnect("websocket")
	require.Equal(t, float64(1), testutil.ToFloat64(r.connected))
	r.IncDisconnect("transport close")
	require.Equal(t, float64(0), testutil.ToFloat64(r.connected))
	require.Equal(t, float64(1), testutil.ToFloat64(r.disconnectsTotal.WithLabelValues("transport close")))

	r.IncDroppedIntent("send_message", "no_room")
	r.IncDroppedIntent("send_message", "no_room")
	require.Equal(t, float64(2), testutil.ToFloat64(r.droppedIntentsTotal.WithLabelValues("send_message", "no_room")))

	r.ObserveRefetch(time.Now(), errors.New("boom"))
	count, err := testutil.GatherAndCount(reg, "colivrt_bridge_refetch_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRegistryRegisterTwiceNoError(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{Registerer: reg})
	require.NoError(t, err)
	_, err = New(Config{Registerer: reg})
	require.NoError(t, err)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() {
		r.IncConnect("polling")
		r.IncDisconnect("io client disconnect")
		r.IncConnectError()
		r.IncRelayed("new_notification")
		r.IncListenerPanic("new_notification")
		r.IncDroppedIntent("typing", "not_connected")
		r.IncNotification()
		r.IncToast()
		r.ObserveRefetch(time.Now(), nil)
	})
}

func TestRegistrySharesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r1, err := New(Config{Registerer: reg})
	require.NoError(t, err)
	r2, err := New(Config{Registerer: reg})
	require.NoError(t, err)

	r1.IncToast()
	r2.IncToast()
	require.Equal(t, float64(2), testutil.ToFloat64(r1.toastsTotal))
}
