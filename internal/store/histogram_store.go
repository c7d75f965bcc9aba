package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/pipeline"
)

// HistogramStore holds named source histograms. It implements
// pipeline.Source; decoded histograms are cached, so repeated loads of a
// truth histogram shared by several R_max values decode once.
type HistogramStore struct {
	db *sql.DB

	mu    sync.Mutex
	cache map[string]*hist.Histogram
}

var _ pipeline.Source = (*HistogramStore)(nil)

// NewHistogramStore creates a HistogramStore.
func NewHistogramStore(db *sql.DB) *HistogramStore {
	return &HistogramStore{db: db, cache: make(map[string]*hist.Histogram)}
}

// Put inserts or replaces a histogram under its name.
func (s *HistogramStore) Put(ctx context.Context, h *hist.Histogram) error {
	rec := newHistogramRecord(h)
	axes, err := json.Marshal(rec.Axes)
	if err != nil {
		return fmt.Errorf("encode axes of %q: %w", h.Name, err)
	}
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("encode content of %q: %w", h.Name, err)
	}
	sumw2, err := json.Marshal(rec.Sumw2)
	if err != nil {
		return fmt.Errorf("encode sumw2 of %q: %w", h.Name, err)
	}

	err = retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO histograms (name, histogram_id, axes_json, content_json, sumw2_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				histogram_id = excluded.histogram_id,
				axes_json = excluded.axes_json,
				content_json = excluded.content_json,
				sumw2_json = excluded.sumw2_json,
				created_at = excluded.created_at`,
			h.Name, rec.ID, string(axes), string(content), string(sumw2), time.Now().UnixNano())
		return err
	})
	if err != nil {
		return fmt.Errorf("insert histogram %q: %w", h.Name, err)
	}

	s.mu.Lock()
	delete(s.cache, h.Name)
	s.mu.Unlock()
	return nil
}

// Histogram implements pipeline.Source. An unknown name returns a
// *pipeline.MissingSourceError.
func (s *HistogramStore) Histogram(ctx context.Context, name string) (*hist.Histogram, error) {
	s.mu.Lock()
	h, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return h, nil
	}

	var rec histogramRecord
	var axes, content, sumw2 string
	err := s.db.QueryRowContext(ctx, `
		SELECT histogram_id, axes_json, content_json, sumw2_json
		FROM histograms WHERE name = ?`, name).Scan(&rec.ID, &axes, &content, &sumw2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &pipeline.MissingSourceError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("query histogram %q: %w", name, err)
	}
	rec.Name = name
	if err := json.Unmarshal([]byte(axes), &rec.Axes); err != nil {
		return nil, fmt.Errorf("decode axes of %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(content), &rec.Content); err != nil {
		return nil, fmt.Errorf("decode content of %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(sumw2), &rec.Sumw2); err != nil {
		return nil, fmt.Errorf("decode sumw2 of %q: %w", name, err)
	}
	h, err = rec.histogram()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[name]; ok {
		return cached, nil
	}
	s.cache[name] = h
	return h, nil
}

// Names lists the stored histogram names in order.
func (s *HistogramStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM histograms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query histogram names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ImportJSON stores the histograms encoded in data, either one record or
// an array of records in the form {"name", "axes": [{"name", "edges"}],
// "content", "sumw2"}. A missing sumw2 means unit weights. It returns the stored names in input order.
func (s *HistogramStore) ImportJSON(ctx context.Context, data []byte) ([]string, error) {
	var recs []histogramRecord
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("decode histograms: %w", err)
		}
	} else {
		var rec histogramRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("decode histogram: %w", err)
		}
		recs = append(recs, rec)
	}

	names := make([]string, 0, len(recs))
	for i, rec := range recs {
		if rec.Name == "" {
			return names, fmt.Errorf("histogram %d: missing name", i)
		}
		h, err := rec.histogram()
		if err != nil {
			return names, err
		}
		if err := s.Put(ctx, h); err != nil {
			return names, err
		}
		names = append(names, h.Name)
	}
	return names, nil
}
