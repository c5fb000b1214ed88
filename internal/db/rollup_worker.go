package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/violation.report/internal/monitoring"
	"github.com/banshee-data/violation.report/internal/timeutil"
)

// RollupWorker periodically aggregates recent violation_events into hourly
// violation_rollups buckets. It runs on an interval, re-processing a trailing
// window with overlap so late-arriving events from slow streams are folded in
// on the next pass.
type RollupWorker struct {
	DB       *DB
	Interval time.Duration // how often to run (e.g. 15m)
	Window   time.Duration // lookback window (e.g. 2h)
	Clock    timeutil.Clock
	StopChan chan struct{}
}

// NewRollupWorker returns a worker with the stock interval and window.
func NewRollupWorker(db *DB) *RollupWorker {
	return &RollupWorker{
		DB:       db,
		Interval: 15 * time.Minute,
		Window:   2 * time.Hour,
		Clock:    timeutil.RealClock{},
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic loop in a goroutine until Stop or ctx cancellation.
func (w *RollupWorker) Start(ctx context.Context) {
	// Create the ticker before spawning the goroutine so callers (and tests
	// driving a mock clock) see it registered as soon as Start returns.
	ticker := w.Clock.NewTicker(w.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if err := w.RunOnce(ctx); err != nil {
					monitoring.Logf("rollup worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop requests the worker loop to exit.
func (w *RollupWorker) Stop() {
	close(w.StopChan)
}

// RunOnce rolls up the trailing window ending now.
func (w *RollupWorker) RunOnce(ctx context.Context) error {
	now := w.Clock.Now().UTC()
	end := float64(now.Unix())
	start := float64(now.Add(-w.Window).Unix())
	return w.RunRange(ctx, start, end)
}

// RunFullHistory rolls up the entire recorded event range, for first-run
// catch-up and the backfill tool.
func (w *RollupWorker) RunFullHistory(ctx context.Context) error {
	var start, end sql.NullFloat64
	if err := w.DB.QueryRowContext(ctx, `SELECT MIN(ts_unix), MAX(ts_unix) FROM violation_events`).Scan(&start, &end); err != nil {
		return fmt.Errorf("failed to read event time range: %w", err)
	}
	if !start.Valid || !end.Valid {
		monitoring.Logf("rollup full-history run skipped (no events)")
		return nil
	}
	// MAX is inclusive; nudge the end so the last event's hour is covered.
	return w.RunRange(ctx, start.Float64, end.Float64+1)
}

// hourFloor snaps a unix-seconds timestamp down to its hour bucket.
func hourFloor(unix float64) int64 {
	return int64(math.Floor(unix/3600)) * 3600
}

// RunRange recomputes every hour bucket overlapping [start, end) in unix
// seconds. Buckets in range are deleted and rebuilt from violation_events, so
// re-runs and window overlaps never double count.
func (w *RollupWorker) RunRange(ctx context.Context, start, end float64) error {
	if start >= end {
		return fmt.Errorf("invalid rollup range: start=%v end=%v", start, end)
	}
	bucketStart := hourFloor(start)

	tx, err := w.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin rollup transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback rollup transaction: %v", err)
		}
	}()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM violation_rollups
		WHERE bucket_unix >= ? AND bucket_unix < ?
	`, bucketStart, int64(end))
	if err != nil {
		return fmt.Errorf("failed to clear rollup buckets: %w", err)
	}
	deleted, _ := result.RowsAffected()

	result, err = tx.ExecContext(ctx, `
		INSERT INTO violation_rollups (bucket_unix, stream_id, kind, event_count, mean_speed_kmh, max_speed_kmh)
		SELECT CAST(ts_unix / 3600 AS INTEGER) * 3600 AS bucket,
		       stream_id,
		       kind,
		       COUNT(*),
		       AVG(speed_kmh),
		       MAX(speed_kmh)
		FROM violation_events
		WHERE ts_unix >= ? AND ts_unix < ?
		GROUP BY bucket, stream_id, kind
	`, float64(bucketStart), end)
	if err != nil {
		return fmt.Errorf("failed to insert rollup buckets: %w", err)
	}
	inserted, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollups: %w", err)
	}
	if deleted > 0 || inserted > 0 {
		monitoring.Logf("rollup worker: rebuilt %d buckets (replaced %d) in range [%v, %v]", inserted, deleted, bucketStart, int64(end))
	}
	return nil
}

// RollupRecord is one hourly bucket row for the charts and summary queries.
type RollupRecord struct {
	BucketUnix   int64    `json:"bucket_unix"`
	StreamID     string   `json:"stream_id"`
	Kind         string   `json:"kind"`
	EventCount   int64    `json:"event_count"`
	MeanSpeedKMH *float64 `json:"mean_speed_kmh,omitempty"`
	MaxSpeedKMH  *float64 `json:"max_speed_kmh,omitempty"`
}

// ListRollups returns buckets at or after sinceUnix, oldest first, optionally
// filtered by stream.
func (s *Store) ListRollups(streamID string, sinceUnix int64) ([]RollupRecord, error) {
	query := `
		SELECT bucket_unix, stream_id, kind, event_count, mean_speed_kmh, max_speed_kmh
		FROM violation_rollups
		WHERE bucket_unix >= ?
	`
	args := []interface{}{sinceUnix}
	if streamID != "" {
		query += " AND stream_id = ?"
		args = append(args, streamID)
	}
	query += " ORDER BY bucket_unix, stream_id, kind"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollups: %w", err)
	}
	defer rows.Close()

	var rollups []RollupRecord
	for rows.Next() {
		var rec RollupRecord
		var mean, max sql.NullFloat64
		if err := rows.Scan(&rec.BucketUnix, &rec.StreamID, &rec.Kind, &rec.EventCount, &mean, &max); err != nil {
			return nil, fmt.Errorf("failed to scan rollup row: %w", err)
		}
		if mean.Valid {
			rec.MeanSpeedKMH = &mean.Float64
		}
		if max.Valid {
			rec.MaxSpeedKMH = &max.Float64
		}
		rollups = append(rollups, rec)
	}
	return rollups, rows.Err()
}
