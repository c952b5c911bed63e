package internal

import "sync/atomic"

// Metrics is a handful of process-local counters. The JSON /metrics endpoint
// lives on Server, which merges in the presence gauge.
type Metrics struct {
	signups           atomic.Uint64
	logins            atomic.Uint64
	activeConns       atomic.Int64
	messages          atomic.Uint64
	droppedDeliveries atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncSignup() { m.signups.Add(1) }

func (m *Metrics) IncLogin() { m.logins.Add(1) }

func (m *Metrics) IncConn() { m.activeConns.Add(1) }

func (m *Metrics) DecConn() { m.activeConns.Add(-1) }

func (m *Metrics) IncMessage() { m.messages.Add(1) }

// IncDroppedDelivery counts a fan-out frame that could not be handed to a
// member's send queue.
func (m *Metrics) IncDroppedDelivery() { m.droppedDeliveries.Add(1) }

func (m *Metrics) snapshot() map[string]any {
	return map[string]any{
		"signups_total":            m.signups.Load(),
		"logins_total":             m.logins.Load(),
		"active_connections":       m.activeConns.Load(),
		"messages_total":           m.messages.Load(),
		"dropped_deliveries_total": m.droppedDeliveries.Load(),
	}
}
