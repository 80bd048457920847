package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSecurityEvent = "auth_security_event"
	MeasurementDecision      = "auth_decision"
)

// SecurityEventPoint describes one security event for time-series storage.
// Identifiers with unbounded cardinality (user id, ip) go into fields, not tags.
type SecurityEventPoint struct {
	Type      string
	Reason    string
	CompanyID string
	UserID    string
	Module    string
	Action    string
	At        time.Time
}

// WriteSecurityEvent queues a security event point.
func (c *Client) WriteSecurityEvent(ev SecurityEventPoint) {
	tags := map[string]string{"type": ev.Type}
	if ev.Reason != "" {
		tags["reason"] = ev.Reason
	}
	if ev.CompanyID != "" {
		tags["company_id"] = ev.CompanyID
	}
	if ev.Module != "" {
		tags["module"] = ev.Module
	}

	fields := map[string]any{"count": 1}
	if ev.UserID != "" {
		fields["user_id"] = ev.UserID
	}
	if ev.Action != "" {
		fields["action"] = ev.Action
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	c.writePoint(write.NewPoint(MeasurementSecurityEvent, tags, fields, at))
}

// WriteDecision queues a permission decision with its resolution basis
// (super_admin, admin, self, user_override, role, denied).
func (c *Client) WriteDecision(companyID, module, action, basis string, allowed bool) {
	tags := map[string]string{
		"module": module,
		"basis":  basis,
	}
	if companyID != "" {
		tags["company_id"] = companyID
	}
	fields := map[string]any{
		"allowed": allowed,
		"action":  action,
	}
	c.writePoint(write.NewPoint(MeasurementDecision, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() || c.writer == nil {
		return
	}
	c.writer.WritePoint(p)
}
