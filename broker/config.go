package broker

import (
	"github.com/lofire/broker/log"
	"github.com/lofire/broker/metrics"
	"github.com/lofire/broker/overlay"
	"github.com/lofire/broker/store"
)

// Config holds the optional collaborators a Broker can be built with,
// following the teacher's small-struct-passed-to-New pattern (e.g.
// networking/benchlist.Config) rather than a generic config loader.
type Config struct {
	Metrics *metrics.Broker
	Log     log.Logger
}

// NewWithConfig builds a Broker like New, additionally wiring cfg's
// optional metrics collector and logger. A nil cfg.Log keeps New's
// no-op default.
func NewWithConfig(st *store.BlockStore, reg *overlay.Registry, accounts *overlay.Accounts, cfg Config) *Broker {
	b := New(st, reg, accounts)
	b.Metrics = cfg.Metrics
	if cfg.Log != nil {
		b.Log = cfg.Log
	}
	return b
}
