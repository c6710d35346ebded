package client

import (
	"github.com/lofire/broker/log"
	"github.com/lofire/broker/metrics"
	"github.com/lofire/broker/transport"
)

// Config holds the optional collaborators a Multiplexer can be built
// with, mirroring broker.Config.
type Config struct {
	Metrics *metrics.Client
	Log     log.Logger
}

// NewMultiplexerWithConfig builds a Multiplexer like NewMultiplexer,
// additionally wiring cfg's optional metrics collector and logger.
func NewMultiplexerWithConfig(conn *transport.FrameConn, cfg Config) *Multiplexer {
	m := NewMultiplexer(conn)
	m.metrics = cfg.Metrics
	if cfg.Log != nil {
		m.log = cfg.Log
	}
	return m
}
