package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := &Counter{}
	c.Inc()
	c.Inc()
	c.Add(3)

	if c.Value() != 5 {
		t.Errorf("Expected 5, got %d", c.Value())
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := &Counter{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if c.Value() != 1000 {
		t.Errorf("Expected 1000, got %d", c.Value())
	}
}

func TestCounterVec(t *testing.T) {
	cv := NewCounterVec()
	cv.WithLabel("connect").Inc()
	cv.WithLabel("connect").Inc()
	cv.WithLabel("status").Inc()

	values := cv.Values()
	if values["connect"] != 2 {
		t.Errorf("Expected connect=2, got %d", values["connect"])
	}
	if values["status"] != 1 {
		t.Errorf("Expected status=1, got %d", values["status"])
	}
}

func TestGauge(t *testing.T) {
	g := &Gauge{}
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()

	if g.Value() != 9 {
		t.Errorf("Expected 9, got %f", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram([]float64{1, 10, 100})
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(500)

	count, sum, buckets := h.Stats()
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
	if sum != 505.5 {
		t.Errorf("Expected sum 505.5, got %f", sum)
	}
	if buckets[0] != 1 || buckets[1] != 1 || buckets[3] != 1 {
		t.Errorf("Unexpected bucket counts: %v", buckets)
	}
}

func TestHandlerOutput(t *testing.T) {
	m := New()
	m.MessagesReceived.Inc()
	m.PullFailures.WithLabel("connect").Inc()
	m.KnownPeers.Set(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "heraldmesh_messages_received_total 1") {
		t.Errorf("Missing messages counter in output:\n%s", body)
	}
	if !strings.Contains(body, `heraldmesh_pull_failures_total{cause="connect"} 1`) {
		t.Errorf("Missing pull failure counter in output:\n%s", body)
	}
	if !strings.Contains(body, "heraldmesh_known_peers 4") {
		t.Errorf("Missing known peers gauge in output:\n%s", body)
	}
}

func TestTimer(t *testing.T) {
	h := NewHistogram(DurationBuckets)
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	d := timer.ObserveDuration()

	if d <= 0 {
		t.Error("Expected positive duration")
	}
	count, _, _ := h.Stats()
	if count != 1 {
		t.Errorf("Expected 1 observation, got %d", count)
	}
}
