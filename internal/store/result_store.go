package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/groomers/internal/decompose"
	"github.com/banshee-data/groomers/internal/hist"
	"github.com/banshee-data/groomers/internal/pipeline"
	"github.com/banshee-data/groomers/internal/ratio"
	"github.com/banshee-data/groomers/internal/selection"
	"github.com/banshee-data/groomers/internal/version"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Run is one persisted pipeline run.
type Run struct {
	RunID         string
	ConfigPath    string
	Version       string
	StartedAt     int64
	FinishedAt    int64
	Status        string
	Units         int
	SlicesBuilt   int
	SlicesSkipped int
	Missing       []string
	Empty         []ratio.Configuration
}

// StoredRatio is one persisted ratio.
type StoredRatio struct {
	Key  ratio.Key
	Hist *hist.Histogram
}

// ResultStore records run results.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a ResultStore.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// BeginRun records a new running run and returns its id.
func (s *ResultStore) BeginRun(ctx context.Context, configPath string) (string, error) {
	runID := uuid.New().String()
	err := retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO runs (run_id, config_path, version, started_at, status) VALUES (?, ?, ?, ?, ?)`,
			runID, configPath, version.String(), time.Now().UnixNano(), RunRunning)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// FinishRun stores the run summary. A nil runErr marks the run complete.
func (s *ResultStore) FinishRun(ctx context.Context, runID string, rep *pipeline.Report, runErr error) error {
	status := RunComplete
	if runErr != nil {
		status = RunFailed
	}
	var units, built, skipped int
	var missing, empty []byte
	if rep != nil {
		units = rep.Units
		built = rep.Count(pipeline.RatiosBuilt)
		skipped = rep.Count(pipeline.InsufficientStatistics)
		var err error
		if missing, err = json.Marshal(rep.Missing); err != nil {
			return fmt.Errorf("encode missing sources: %w", err)
		}
		if empty, err = json.Marshal(rep.EmptyConfigurations); err != nil {
			return fmt.Errorf("encode empty configurations: %w", err)
		}
	}

	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE runs SET finished_at = ?, status = ?, units = ?, slices_built = ?,
			       slices_skipped = ?, missing_json = ?, empty_json = ?
			WHERE run_id = ?`,
			time.Now().UnixNano(), status, units, built, skipped, nullString(missing), nullString(empty), runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

func nullString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// GetRun returns one run.
func (s *ResultStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var cfgPath, ver, missing, empty sql.NullString
	var finished sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, config_path, version, started_at, finished_at, status, units,
		       slices_built, slices_skipped, missing_json, empty_json
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &cfgPath, &ver, &r.StartedAt, &finished, &r.Status, &r.Units,
		&r.SlicesBuilt, &r.SlicesSkipped, &missing, &empty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.ConfigPath = cfgPath.String
	r.Version = ver.String
	r.FinishedAt = finished.Int64
	if missing.Valid {
		if err := json.Unmarshal([]byte(missing.String), &r.Missing); err != nil {
			return nil, fmt.Errorf("decode missing sources: %w", err)
		}
	}
	if empty.Valid {
		if err := json.Unmarshal([]byte(empty.String), &r.Empty); err != nil {
			return nil, fmt.Errorf("decode empty configurations: %w", err)
		}
	}
	return &r, nil
}

// SaveSlice stores the category distributions and both ratios of one
// processed slice in a single transaction.
func (s *ResultStore) SaveSlice(ctx context.Context, runID string, cfg ratio.Configuration, res *decompose.Result, pair ratio.Pair) error {
	type ratioRow struct {
		kind ratio.Kind
		h    *hist.Histogram
	}
	rows := []ratioRow{{ratio.MeasuredVsTruth, pair.MeasuredVsTruth}, {ratio.TaggedPurity, pair.TaggedPurity}}
	sl := res.Slice

	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, c := range res.Categories {
			data, err := marshalHistogram(c.Hist)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO distributions (
					run_id, observable, jet_r, r_max, label, min_pt, max_pt, min_threshold,
					category, flag, tagged, norm_measured, norm_truth, histogram_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, cfg.Observable, cfg.JetR, cfg.RMax, cfg.Label, sl.MinPt, sl.MaxPt, sl.MinThreshold,
				c.Category.Name, c.Category.Flag, c.Category.Tagged, res.Constants.Measured, res.Constants.Truth, data,
			); err != nil {
				return fmt.Errorf("insert distribution %s: %w", c.Category.Name, err)
			}
		}
		for _, r := range rows {
			if r.h == nil {
				continue
			}
			data, err := marshalHistogram(r.h)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ratios (
					run_id, observable, jet_r, r_max, label, min_pt, max_pt, min_threshold, kind, histogram_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, cfg.Observable, cfg.JetR, cfg.RMax, cfg.Label, sl.MinPt, sl.MaxPt, sl.MinThreshold, string(r.kind), data,
			); err != nil {
				return fmt.Errorf("insert ratio %s: %w", r.kind, err)
			}
		}
		return tx.Commit()
	})
}

// Sink returns a pipeline.Sink that saves every slice under runID.
func (s *ResultStore) Sink(runID string) pipeline.Sink {
	return pipeline.SinkFunc(func(ctx context.Context, u pipeline.Unit, res *decompose.Result, pair ratio.Pair) error {
		return s.SaveSlice(ctx, runID, u.Configuration(), res, pair)
	})
}

// Ratios returns every ratio of a run for one observable, ordered by
// configuration, slice and kind.
func (s *ResultStore) Ratios(ctx context.Context, runID, observable string) ([]StoredRatio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT jet_r, r_max, label, min_pt, max_pt, min_threshold, kind, histogram_json
		FROM ratios
		WHERE run_id = ? AND observable = ?
		ORDER BY jet_r, r_max, label, min_pt, max_pt, min_threshold, kind`, runID, observable)
	if err != nil {
		return nil, fmt.Errorf("query ratios: %w", err)
	}
	defer rows.Close()

	var out []StoredRatio
	for rows.Next() {
		var k ratio.Key
		var kind, data string
		k.Config.Observable = observable
		if err := rows.Scan(&k.Config.JetR, &k.Config.RMax, &k.Config.Label,
			&k.Slice.MinPt, &k.Slice.MaxPt, &k.Slice.MinThreshold, &kind, &data); err != nil {
			return nil, fmt.Errorf("scan ratio: %w", err)
		}
		k.Kind = ratio.Kind(kind)
		h, err := unmarshalHistogram(data)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredRatio{Key: k, Hist: h})
	}
	return out, rows.Err()
}

// Distributions returns the stored category distributions of one slice in
// flag order.
func (s *ResultStore) Distributions(ctx context.Context, runID string, cfg ratio.Configuration, sl selection.Slice) ([]*hist.Histogram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT histogram_json FROM distributions
		WHERE run_id = ? AND observable = ? AND jet_r = ? AND r_max = ? AND label = ?
		  AND min_pt = ? AND max_pt = ? AND min_threshold = ?
		ORDER BY flag`,
		runID, cfg.Observable, cfg.JetR, cfg.RMax, cfg.Label, sl.MinPt, sl.MaxPt, sl.MinThreshold)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	var out []*hist.Histogram
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		h, err := unmarshalHistogram(data)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored under it.
func (s *ResultStore) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}
