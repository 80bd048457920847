package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/Rajatsinha05/erp-sub004/internal/auth"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/influxdb"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/mqtt"
)

type publisherSpy struct {
	topics   []string
	payloads []any
	err      error
}

func (p *publisherSpy) PublishJSON(topic string, v any) error {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, v)
	return p.err
}

type pointSpy struct {
	events    []influxdb.SecurityEventPoint
	decisions []string
}

func (p *pointSpy) WriteSecurityEvent(ev influxdb.SecurityEventPoint) {
	p.events = append(p.events, ev)
}

func (p *pointSpy) WriteDecision(companyID, module, action, basis string, allowed bool) {
	state := "deny"
	if allowed {
		state = "allow"
	}
	p.decisions = append(p.decisions, companyID+"/"+module+"/"+action+"/"+basis+"/"+state)
}

type counterSpy struct {
	events    map[string]int
	decisions map[string]int
}

func newCounterSpy() *counterSpy {
	return &counterSpy{events: map[string]int{}, decisions: map[string]int{}}
}

func (c *counterSpy) ObserveSecurityEvent(eventType string) { c.events[eventType]++ }

func (c *counterSpy) ObserveDecision(module, basis string, allowed bool) {
	if allowed {
		c.decisions[module+"/"+basis+"/allow"]++
		return
	}
	c.decisions[module+"/"+basis+"/deny"]++
}

func TestMQTTSink_Publish(t *testing.T) {
	pub := &publisherSpy{}
	sink := NewMQTTSink(pub, mqtt.NewTopics("erp/auth"), discardLogger())

	sink.Publish(auth.SecurityEvent{Type: auth.EventAccountLocked, UserID: "u1"})

	if len(pub.topics) != 1 || pub.topics[0] != "erp/auth/events/account_locked" {
		t.Fatalf("topics = %v, want [erp/auth/events/account_locked]", pub.topics)
	}
	ev, ok := pub.payloads[0].(auth.SecurityEvent)
	if !ok || ev.UserID != "u1" {
		t.Errorf("payload = %#v", pub.payloads[0])
	}
}

func TestMQTTSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &publisherSpy{err: errors.New("not connected")}
	sink := NewMQTTSink(pub, mqtt.NewTopics("erp/auth"), discardLogger())
	sink.Publish(auth.SecurityEvent{Type: auth.EventLoginFailed})
	if len(pub.topics) != 1 {
		t.Errorf("publish attempts = %d, want 1", len(pub.topics))
	}
}

func TestInfluxSink_Publish(t *testing.T) {
	w := &pointSpy{}
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	NewInfluxSink(w).Publish(auth.SecurityEvent{
		Type:      auth.EventPermissionDenied,
		CompanyID: "c1",
		Module:    "inventory",
		Action:    "delete",
		Reason:    "insufficient permissions",
		At:        at,
	})

	if len(w.events) != 1 {
		t.Fatalf("points = %d, want 1", len(w.events))
	}
	p := w.events[0]
	if p.Type != "permission_denied" || p.CompanyID != "c1" || p.Module != "inventory" || !p.At.Equal(at) {
		t.Errorf("point = %+v", p)
	}
}

func TestCounterSink_Publish(t *testing.T) {
	c := newCounterSpy()
	sink := NewCounterSink(c)
	sink.Publish(auth.SecurityEvent{Type: auth.EventLoginFailed})
	sink.Publish(auth.SecurityEvent{Type: auth.EventLoginFailed})

	if c.events["login_failed"] != 2 {
		t.Errorf("login_failed count = %d, want 2", c.events["login_failed"])
	}
}

func TestDecisions_ObserveDecision(t *testing.T) {
	c := newCounterSpy()
	w := &pointSpy{}
	d := NewDecisions(c, w)

	d.ObserveDecision("c1", "inventory", "delete", auth.BasisUserOverride, true)
	d.ObserveDecision("c1", "payroll", "view", auth.BasisDenied, false)

	if c.decisions["inventory/user_override/allow"] != 1 || c.decisions["payroll/denied/deny"] != 1 {
		t.Errorf("counter = %v", c.decisions)
	}
	if len(w.decisions) != 2 || w.decisions[1] != "c1/payroll/view/denied/deny" {
		t.Errorf("points = %v", w.decisions)
	}

	// nil collaborators are skipped
	NewDecisions(nil, nil).ObserveDecision("c1", "inventory", "view", auth.BasisRole, true)
}
