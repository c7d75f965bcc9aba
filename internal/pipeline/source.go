package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/groomers/internal/hist"
)

// ErrMissingSource is returned when a requested histogram does not exist.
// The runner skips the affected configuration.
var ErrMissingSource = errors.New("source histogram missing")

// MissingSourceError names the histogram that could not be found.
type MissingSourceError struct {
	Name string
}

func (e *MissingSourceError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingSource, e.Name)
}

func (e *MissingSourceError) Unwrap() error { return ErrMissingSource }

// Source loads measured and truth histograms by name. Implementations must
// be safe for concurrent use; returned histograms are treated as shared
// and only ever read through views.
type Source interface {
	Histogram(ctx context.Context, name string) (*hist.Histogram, error)
}

// MemorySource is a map-backed Source.
type MemorySource struct {
	mu    sync.RWMutex
	hists map[string]*hist.Histogram
}

// NewMemorySource returns a MemorySource holding hs, keyed by name.
func NewMemorySource(hs ...*hist.Histogram) *MemorySource {
	m := &MemorySource{hists: make(map[string]*hist.Histogram, len(hs))}
	for _, h := range hs {
		m.hists[h.Name] = h
	}
	return m
}

// Put adds or replaces a histogram.
func (m *MemorySource) Put(h *hist.Histogram) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hists[h.Name] = h
}

// Histogram implements Source.
func (m *MemorySource) Histogram(ctx context.Context, name string) (*hist.Histogram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hists[name]
	if !ok {
		return nil, &MissingSourceError{Name: name}
	}
	return h, nil
}
