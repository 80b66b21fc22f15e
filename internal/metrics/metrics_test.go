package metrics

import (
	"errors"
	"testing"
)

type recordingBackend struct {
	counters   map[string]float64
	histograms map[string][]float64
	flushes    int
	flushErr   error
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
	}
}

func (b *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	b.counters[name+labels["table"]] += delta
}

func (b *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	b.histograms[name] = append(b.histograms[name], value)
}

func (b *recordingBackend) Flush() error {
	b.flushes++
	return b.flushErr
}

func TestDefaultBackendIsNop(t *testing.T) {
	// Must not panic with no backend configured.
	IncCounter("x", 1, nil)
	ObserveHistogram("y", 2, Labels{"a": "b"})
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}
}

func TestSetBackendRoutesCalls(t *testing.T) {
	b := newRecordingBackend()
	SetBackend(b)
	defer SetBackend(nil)

	IncCounter("rows", 3, Labels{"table": "songs"})
	IncCounter("rows", 2, Labels{"table": "songs"})
	ObserveHistogram("dur", 12.5, nil)

	if b.counters["rowssongs"] != 5 {
		t.Fatalf("counter = %v", b.counters)
	}
	if len(b.histograms["dur"]) != 1 || b.histograms["dur"][0] != 12.5 {
		t.Fatalf("histogram = %v", b.histograms)
	}
}

func TestFlushPropagatesError(t *testing.T) {
	b := newRecordingBackend()
	b.flushErr = errors.New("submit failed")
	SetBackend(b)
	defer SetBackend(nil)

	if err := Flush(); err == nil {
		t.Fatalf("expected flush error")
	}
	if b.flushes != 1 {
		t.Fatalf("flushes = %d", b.flushes)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	b := newRecordingBackend()
	SetBackend(b)
	SetBackend(nil)

	IncCounter("after", 1, nil)
	if len(b.counters) != 0 {
		t.Fatalf("nil backend should disable routing: %v", b.counters)
	}
}
