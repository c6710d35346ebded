package metrics_test

import (
	"testing"

	"github.com/lofire/broker/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestBrokerMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, err := metrics.NewBroker(reg)
	require.NoError(t, err)

	b.ObserveRequest("BlockPut")
	b.ObserveResult("OK")
	b.ObserveStreamedBlock()
	b.ConnOpened()
	b.ConnClosed()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestClientMetricsRegisterAndObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewClient(reg)
	require.NoError(t, err)

	c.SetPendingUnary(3)
	c.SetPendingStream(1)
	c.ObserveCall("put_block")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
