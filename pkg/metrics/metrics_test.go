package metrics

import (
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("dump_requests_total", "Dump requests served")
	c.Inc(Labels{"sampler": "extruder"})
	c.Add(Labels{"sampler": "extruder"}, 2)
	c.Inc(nil)

	if got := c.Get(Labels{"sampler": "extruder"}); got != 3 {
		t.Errorf("labeled count = %d, want 3", got)
	}
	if got := c.Get(nil); got != 1 {
		t.Errorf("unlabeled count = %d, want 1", got)
	}

	var sb strings.Builder
	c.Write(&sb)
	out := sb.String()
	if !strings.Contains(out, "# TYPE dump_requests_total counter") {
		t.Errorf("missing TYPE line:\n%s", out)
	}
	if !strings.Contains(out, `dump_requests_total{sampler="extruder"} 3`) {
		t.Errorf("missing labeled sample:\n%s", out)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("ws_clients", "Connected WebSocket clients")
	g.Inc(nil)
	g.Inc(nil)
	g.Dec(nil)
	if got := g.Get(nil); got != 1 {
		t.Errorf("gauge = %g, want 1", got)
	}
	g.Set(nil, 5)
	if got := g.Get(nil); got != 5 {
		t.Errorf("gauge = %g, want 5", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("sample_duration_seconds", "Sample call duration",
		[]float64{0.01, 0.1, 1})
	h.Observe(nil, 0.005)
	h.Observe(nil, 0.05)
	h.Observe(nil, 2)

	if got := h.Count(nil); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	for _, want := range []string{
		`sample_duration_seconds_bucket{le="0.01"} 1`,
		`sample_duration_seconds_bucket{le="0.1"} 2`,
		`sample_duration_seconds_bucket{le="1"} 2`,
		`sample_duration_seconds_bucket{le="+Inf"} 3`,
		"sample_duration_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("a_total", "a")
	r.MustRegister(c)
	r.MustRegister(NewGauge("b", "b"))

	if err := r.Register(NewCounter("a_total", "dup")); err == nil {
		t.Error("duplicate registration should fail")
	}

	c.Inc(nil)
	out := r.Gather()
	ai := strings.Index(out, "# HELP a_total")
	bi := strings.Index(out, "# HELP b")
	if ai < 0 || bi < 0 || ai > bi {
		t.Errorf("metrics missing or out of registration order:\n%s", out)
	}
}
