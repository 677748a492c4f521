// Package telemetry provides fire-and-forget publishing of named scalar
// values for diagnostics.
package telemetry

import (
	"sync"
	"time"
)

// Sink receives named scalar samples. Publish must never block the caller
// and never fail visibly; a lost sample must not affect control.
type Sink interface {
	Publish(name string, value float64)
}

// RunSetter is implemented by sinks that label samples with a run ID.
type RunSetter interface {
	SetRun(id string)
}

// SetRun labels subsequent samples of s with id when s supports it.
func SetRun(s Sink, id string) {
	if rs, ok := s.(RunSetter); ok {
		rs.SetRun(id)
	}
}

// Sample is one published value.
type Sample struct {
	Run   string    `json:"run,omitempty"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Discard drops every sample.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(string, float64) {}

// Table prefixes every name with a table name, e.g. "Arm/ElbowVolts".
type Table struct {
	sink   Sink
	prefix string
}

// NewTable returns a sink that publishes into the named table of s.
func NewTable(s Sink, name string) Table {
	if s == nil {
		s = Discard
	}
	return Table{sink: s, prefix: name + "/"}
}

// Key returns the full key a name is published under.
func (t Table) Key(name string) string {
	return t.prefix + name
}

// Publish implements Sink.
func (t Table) Publish(name string, value float64) {
	t.sink.Publish(t.prefix+name, value)
}

// SetRun implements RunSetter.
func (t Table) SetRun(id string) {
	SetRun(t.sink, id)
}

// Recorder keeps every published sample in memory. It backs tests and
// snapshot views.
type Recorder struct {
	mu      sync.Mutex
	run     string
	samples []Sample
}

// Publish implements Sink.
func (r *Recorder) Publish(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, Sample{Run: r.run, Name: name, Value: value, Time: time.Now()})
}

// SetRun implements RunSetter.
func (r *Recorder) SetRun(id string) {
	r.mu.Lock()
	r.run = id
	r.mu.Unlock()
}

// Samples returns a copy of all samples in publish order.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Last returns the most recent value published under name.
func (r *Recorder) Last(name string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.samples) - 1; i >= 0; i-- {
		if r.samples[i].Name == name {
			return r.samples[i].Value, true
		}
	}
	return 0, false
}

// Reset drops all recorded samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.samples = nil
	r.mu.Unlock()
}
