package audit

import (
	"log/slog"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/influxdb"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/mqtt"
)

// JSONPublisher is the MQTT surface MQTTSink needs.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes each event to {prefix}/events/{type}.
type MQTTSink struct {
	pub    JSONPublisher
	topics mqtt.Topics
	logger *slog.Logger
}

// NewMQTTSink returns a sink publishing through pub.
func NewMQTTSink(pub JSONPublisher, topics mqtt.Topics, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, logger: logger}
}

// Publish sends ev. Failures are logged at debug; the broker may be down.
func (s *MQTTSink) Publish(ev auth.SecurityEvent) {
	if err := s.pub.PublishJSON(s.topics.SecurityEvent(string(ev.Type)), ev); err != nil {
		s.logger.Debug("mqtt security event publish failed", "type", string(ev.Type), "error", err)
	}
}

// EventPointWriter is the InfluxDB surface the telemetry adapters need.
type EventPointWriter interface {
	WriteSecurityEvent(ev influxdb.SecurityEventPoint)
	WriteDecision(companyID, module, action, basis string, allowed bool)
}

// InfluxSink writes each event as a time-series point.
type InfluxSink struct {
	w EventPointWriter
}

// NewInfluxSink returns a sink writing through w.
func NewInfluxSink(w EventPointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Publish queues a point for ev.
func (s *InfluxSink) Publish(ev auth.SecurityEvent) {
	s.w.WriteSecurityEvent(influxdb.SecurityEventPoint{
		Type:      string(ev.Type),
		Reason:    ev.Reason,
		CompanyID: ev.CompanyID,
		UserID:    ev.UserID,
		Module:    ev.Module,
		Action:    ev.Action,
		At:        ev.At,
	})
}

// EventCounter counts security events, for example Prometheus.
type EventCounter interface {
	ObserveSecurityEvent(eventType string)
}

// CounterSink increments a counter per event type.
type CounterSink struct {
	c EventCounter
}

// NewCounterSink returns a sink counting through c.
func NewCounterSink(c EventCounter) *CounterSink {
	return &CounterSink{c: c}
}

// Publish counts ev.
func (s *CounterSink) Publish(ev auth.SecurityEvent) {
	s.c.ObserveSecurityEvent(string(ev.Type))
}

// DecisionCounter counts permission decisions.
type DecisionCounter interface {
	ObserveDecision(module, basis string, allowed bool)
}

// Decisions implements auth.DecisionObserver over a counter and an optional
// time-series writer.
type Decisions struct {
	counter DecisionCounter
	points  EventPointWriter
}

// NewDecisions builds the observer. Either argument may be nil.
func NewDecisions(counter DecisionCounter, points EventPointWriter) *Decisions {
	return &Decisions{counter: counter, points: points}
}

// ObserveDecision forwards one decision.
func (d *Decisions) ObserveDecision(companyID, module, action string, basis auth.GrantBasis, allowed bool) {
	if d.counter != nil {
		d.counter.ObserveDecision(module, string(basis), allowed)
	}
	if d.points != nil {
		d.points.WriteDecision(companyID, module, action, string(basis), allowed)
	}
}
