// Package metrics is a namespaced counter/gauge/histogram sink. Every
// observation is appended as one JSON line to the sink's file, so a run's
// metrics can be replayed or aggregated after the fact without a running
// metrics server.
package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Sink writes metric observations as JSON lines. It is safe for concurrent
// use by every chain and node in a run.
type Sink struct {
	mu  sync.Mutex
	out *os.File
}

type record struct {
	Time  time.Time `json:"time"`
	Kind  string    `json:"kind"`
	Name  string    `json:"name"`
	Value float64   `json:"value"`
}

// Open creates (or truncates) path and returns a Sink writing to it.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Sink{out: f}, nil
}

// IncCounter adds delta to the named counter; callers pass 1 for a simple
// increment. Sink records the delta itself rather than a running total,
// leaving aggregation to the reader.
func (s *Sink) IncCounter(name string, delta float64) {
	s.write(record{Time: time.Now(), Kind: "counter", Name: name, Value: delta})
}

// SetGauge records the current value of name.
func (s *Sink) SetGauge(name string, value float64) {
	s.write(record{Time: time.Now(), Kind: "gauge", Name: name, Value: value})
}

// Observe records a single sample for a histogram named name.
func (s *Sink) Observe(name string, value float64) {
	s.write(record{Time: time.Now(), Kind: "histogram", Name: name, Value: value})
}

func (s *Sink) write(r record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.out)
	_ = enc.Encode(r)
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// Noop returns a Sink that discards every observation, for tests and
// components that run without metrics configured.
func Noop() *Sink {
	return &Sink{out: nil}
}
