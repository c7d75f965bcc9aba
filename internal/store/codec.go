package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/groomers/internal/hist"
)

type axisRecord struct {
	Name  string    `json:"name"`
	Edges []float64 `json:"edges"`
}

// histogramRecord is the JSON form of a histogram. Axis restrictions are
// not stored; they are view state.
type histogramRecord struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Axes    []axisRecord `json:"axes"`
	Content []float64    `json:"content"`
	Sumw2   []float64    `json:"sumw2"`
}

func newHistogramRecord(h *hist.Histogram) histogramRecord {
	rec := histogramRecord{
		ID:      h.ID.String(),
		Name:    h.Name,
		Content: h.Values(),
		Sumw2:   h.Sumw2(),
	}
	for _, a := range h.Axes() {
		rec.Axes = append(rec.Axes, axisRecord{Name: a.Name, Edges: append([]float64(nil), a.Edges...)})
	}
	return rec
}

func (rec histogramRecord) histogram() (*hist.Histogram, error) {
	axes := make([]hist.Axis, 0, len(rec.Axes))
	for _, ar := range rec.Axes {
		a, err := hist.NewAxis(ar.Name, ar.Edges)
		if err != nil {
			return nil, fmt.Errorf("histogram %q: %w", rec.Name, err)
		}
		axes = append(axes, a)
	}
	h, err := hist.New(rec.Name, axes...)
	if err != nil {
		return nil, err
	}
	if err := h.SetValues(rec.Content, rec.Sumw2); err != nil {
		return nil, err
	}
	if id, err := uuid.Parse(rec.ID); err == nil {
		h.ID = id
	}
	return h, nil
}

func marshalHistogram(h *hist.Histogram) (string, error) {
	b, err := json.Marshal(newHistogramRecord(h))
	if err != nil {
		return "", fmt.Errorf("encode histogram %q: %w", h.Name, err)
	}
	return string(b), nil
}

func unmarshalHistogram(data string) (*hist.Histogram, error) {
	var rec histogramRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode histogram: %w", err)
	}
	return rec.histogram()
}
