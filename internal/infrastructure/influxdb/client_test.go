package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writer: w, connected: true}, w
}

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) any {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteSecurityEvent(t *testing.T) {
	c, w := newTestClient()
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	c.WriteSecurityEvent(SecurityEventPoint{
		Type:      "account_locked",
		Reason:    "threshold_reached",
		CompanyID: "c-1",
		UserID:    "u-1",
		At:        at,
	})

	if len(w.points) != 1 {
		t.Fatalf("points written = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementSecurityEvent {
		t.Errorf("Name() = %q", p.Name())
	}
	if got := tagValue(p, "type"); got != "account_locked" {
		t.Errorf("tag type = %q", got)
	}
	if got := tagValue(p, "company_id"); got != "c-1" {
		t.Errorf("tag company_id = %q", got)
	}
	if got := fieldValue(p, "user_id"); got != "u-1" {
		t.Errorf("field user_id = %v", got)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestWriteDecision(t *testing.T) {
	c, w := newTestClient()

	c.WriteDecision("c-1", "inventory", "delete", "user_override", true)

	if len(w.points) != 1 {
		t.Fatalf("points written = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if got := tagValue(p, "basis"); got != "user_override" {
		t.Errorf("tag basis = %q", got)
	}
	if got := fieldValue(p, "allowed"); got != true {
		t.Errorf("field allowed = %v", got)
	}
}

func TestWrite_AfterClose(t *testing.T) {
	c, w := newTestClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on Close = %d, want 1", w.flushes)
	}

	c.WriteDecision("", "settings", "update", "denied", false)
	if len(w.points) != 0 {
		t.Errorf("points written after Close = %d, want 0", len(w.points))
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := newTestClient()

	var got error
	done := make(chan struct{})
	c.SetOnError(func(err error) {
		got = err
		close(done)
	})

	ch := make(chan error, 1)
	ch <- errors.New("bucket not found")
	close(ch)
	c.handleWriteErrors(ch)

	<-done
	if !errors.Is(got, ErrWriteFailed) {
		t.Errorf("callback error = %v, want ErrWriteFailed", got)
	}
}
