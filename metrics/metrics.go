// Package metrics exposes prometheus collectors for the broker engine
// and client multiplexer, grounded on the teacher's metrics.Averager:
// counters/gauges registered once and updated inline, never reconstructed
// per call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broker holds the broker engine's per-operation counters.
type Broker struct {
	requestsTotal   *prometheus.CounterVec
	resultsTotal    *prometheus.CounterVec
	streamedBlocks  prometheus.Counter
	activeConns     prometheus.Gauge
}

// NewBroker registers and returns a Broker's collectors against reg.
func NewBroker(reg prometheus.Registerer) (*Broker, error) {
	b := &Broker{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lofire_broker",
			Name:      "requests_total",
			Help:      "Requests handled, by operation.",
		}, []string{"op"}),
		resultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lofire_broker",
			Name:      "results_total",
			Help:      "Responses sent, by result code.",
		}, []string{"result"}),
		streamedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lofire_broker",
			Name:      "streamed_blocks_total",
			Help:      "Blocks sent in streamed BlockGet/BranchSyncReq responses.",
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lofire_broker",
			Name:      "active_connections",
			Help:      "Currently handled connections.",
		}),
	}
	for _, c := range []prometheus.Collector{b.requestsTotal, b.resultsTotal, b.streamedBlocks, b.activeConns} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ObserveRequest records one handled request for op.
func (b *Broker) ObserveRequest(op string) { b.requestsTotal.WithLabelValues(op).Inc() }

// ObserveResult records one response with the given result code name.
func (b *Broker) ObserveResult(result string) { b.resultsTotal.WithLabelValues(result).Inc() }

// ObserveStreamedBlock records one block emitted in a streamed response.
func (b *Broker) ObserveStreamedBlock() { b.streamedBlocks.Inc() }

// ConnOpened/ConnClosed track the active connection gauge.
func (b *Broker) ConnOpened() { b.activeConns.Inc() }
func (b *Broker) ConnClosed() { b.activeConns.Dec() }

// Client holds the client multiplexer's pending-table depth metrics.
type Client struct {
	pendingUnary  prometheus.Gauge
	pendingStream prometheus.Gauge
	callsTotal    *prometheus.CounterVec
}

// NewClient registers and returns a Client's collectors against reg.
func NewClient(reg prometheus.Registerer) (*Client, error) {
	c := &Client{
		pendingUnary: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lofire_client",
			Name:      "pending_unary",
			Help:      "Unary requests awaiting a response.",
		}),
		pendingStream: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lofire_client",
			Name:      "pending_stream",
			Help:      "Streaming requests still open.",
		}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lofire_client",
			Name:      "calls_total",
			Help:      "Calls issued, by operation.",
		}, []string{"op"}),
	}
	for _, col := range []prometheus.Collector{c.pendingUnary, c.pendingStream, c.callsTotal} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetPendingUnary/SetPendingStream report the current pending-table depth.
func (c *Client) SetPendingUnary(n int)  { c.pendingUnary.Set(float64(n)) }
func (c *Client) SetPendingStream(n int) { c.pendingStream.Set(float64(n)) }

// ObserveCall records one issued call for op.
func (c *Client) ObserveCall(op string) { c.callsTotal.WithLabelValues(op).Inc() }
