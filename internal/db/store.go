package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/violation.report/internal/monitoring"
	"github.com/banshee-data/violation.report/internal/traffic"
	"github.com/google/uuid"
)

// ErrNotFound is returned by lookup helpers when no row matches.
var ErrNotFound = fmt.Errorf("db: not found")

// Store persists pipeline output: violation events, finished-track summaries,
// the plate registry and stream sessions. It implements traffic.EventSink,
// traffic.TrackSink and traffic.SessionSink so it can be wired straight into
// a PipelineConfig. Writes are serialized by sqlite; the pipeline calls these
// synchronously from its own goroutine.
type Store struct {
	db *DB
}

// NewStore wraps an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Database returns the underlying handle, for workers and admin routes that
// share the store's connection.
func (s *Store) Database() *DB {
	return s.db
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// RecordViolation inserts one emitted event. When the event carries plate
// text, the plate registry decides the repeat-offender flag: a plate already
// holding violations marks the new event, and the registry's violation count
// is bumped either way.
func (s *Store) RecordViolation(event traffic.ViolationEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin violation insert: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			monitoring.Logf("warning: failed to rollback violation insert: %v", err)
		}
	}()

	now := unixSeconds(time.Now())
	repeat := false
	if event.PlateText != "" {
		var priorViolations int64
		err := tx.QueryRow(`SELECT violation_count FROM plates WHERE plate_text = ?`, event.PlateText).Scan(&priorViolations)
		switch {
		case err == sql.ErrNoRows:
			// first sighting, registered below
		case err != nil:
			return fmt.Errorf("failed to look up plate %q: %w", event.PlateText, err)
		default:
			repeat = priorViolations > 0
		}

		if _, err := tx.Exec(`
			INSERT INTO plates (plate_text, first_seen_unix, last_seen_unix, violation_count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(plate_text) DO UPDATE SET
				last_seen_unix = excluded.last_seen_unix,
				violation_count = violation_count + 1
		`, event.PlateText, now, now); err != nil {
			return fmt.Errorf("failed to update plate registry for %q: %w", event.PlateText, err)
		}
	}

	var crossingX, crossingY sql.NullFloat64
	if event.Crossing != nil {
		crossingX = sql.NullFloat64{Float64: event.Crossing.X, Valid: true}
		crossingY = sql.NullFloat64{Float64: event.Crossing.Y, Valid: true}
	}

	if _, err := tx.Exec(`
		INSERT INTO violation_events (
			event_id, stream_id, track_id, kind, frame_index, ts_unix,
			vehicle_class, confidence, speed_kmh, plate_text, plate_outcome,
			crossing_x, crossing_y,
			evidence_x, evidence_y, evidence_w, evidence_h,
			repeat_offender
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		event.StreamID,
		event.TrackID,
		string(event.Kind),
		event.FrameIndex,
		unixSeconds(event.Timestamp),
		nullString(string(event.VehicleClass)),
		event.Confidence,
		nullFloat(event.SpeedKMH, event.Kind == traffic.ViolationSpeed),
		nullString(event.PlateText),
		nullString(string(event.PlateOutcome)),
		crossingX,
		crossingY,
		event.EvidenceBox.X,
		event.EvidenceBox.Y,
		event.EvidenceBox.W,
		event.EvidenceBox.H,
		boolToInt(repeat),
	); err != nil {
		return fmt.Errorf("failed to insert violation event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit violation insert: %w", err)
	}
	return nil
}

// RecordTrack inserts a finished-track summary with speed percentiles, and
// registers validly resolved plates so later violations on the same plate are
// flagged as repeat offenses.
func (s *Store) RecordTrack(summary traffic.TrackSummary) error {
	var p50, p85, p95, max sql.NullFloat64
	if pct, ok := ComputeSpeedPercentiles(summary.SpeedsKMH); ok {
		p50 = sql.NullFloat64{Float64: pct.P50, Valid: true}
		p85 = sql.NullFloat64{Float64: pct.P85, Valid: true}
		p95 = sql.NullFloat64{Float64: pct.P95, Valid: true}
		max = sql.NullFloat64{Float64: pct.Max, Valid: true}
	}

	if _, err := s.db.Exec(`
		INSERT INTO track_summaries (
			stream_id, track_id, class, first_frame, last_frame, observations,
			max_speed_kmh, p50_speed_kmh, p85_speed_kmh, p95_speed_kmh,
			plate_text, plate_outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.StreamID,
		summary.TrackID,
		string(summary.Class),
		summary.FirstFrame,
		summary.LastFrame,
		summary.Observations,
		max, p50, p85, p95,
		nullString(summary.PlateText),
		nullString(string(summary.PlateOutcome)),
	); err != nil {
		return fmt.Errorf("failed to insert track summary: %w", err)
	}

	if summary.PlateOutcome == traffic.PlateValid && summary.PlateText != "" {
		now := unixSeconds(time.Now())
		if _, err := s.db.Exec(`
			INSERT INTO plates (plate_text, first_seen_unix, last_seen_unix, track_count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(plate_text) DO UPDATE SET
				last_seen_unix = excluded.last_seen_unix,
				track_count = track_count + 1
		`, summary.PlateText, now, now); err != nil {
			return fmt.Errorf("failed to register plate %q: %w", summary.PlateText, err)
		}
	}
	return nil
}

// RecordSessionStart inserts a new stream session row.
func (s *Store) RecordSessionStart(session traffic.StreamSession) error {
	if _, err := s.db.Exec(`
		INSERT INTO stream_sessions (session_id, stream_id, frame_rate, started_unix)
		VALUES (?, ?, ?, ?)
	`, session.SessionID, session.StreamID, session.FrameRate, unixSeconds(session.StartedAt)); err != nil {
		return fmt.Errorf("failed to insert stream session: %w", err)
	}
	return nil
}

// RecordSessionEnd closes a session with its final pipeline counters.
func (s *Store) RecordSessionEnd(session traffic.StreamSession, stats traffic.PipelineStats) error {
	ended := time.Now()
	if session.EndedAt != nil {
		ended = *session.EndedAt
	}
	result, err := s.db.Exec(`
		UPDATE stream_sessions SET
			ended_unix = ?,
			frames_processed = ?,
			events_emitted = ?,
			tracks_started = ?,
			tracks_purged = ?,
			sink_errors = ?
		WHERE session_id = ?
	`,
		unixSeconds(ended),
		stats.FramesProcessed,
		stats.EventsEmitted,
		stats.TracksStarted,
		stats.TracksPurged,
		stats.SinkErrors,
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close stream session %s: %w", session.SessionID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("close stream session %s: %w", session.SessionID, ErrNotFound)
	}
	return nil
}

// PlateRecord is one row of the plate registry.
type PlateRecord struct {
	PlateText      string  `json:"plate_text"`
	FirstSeenUnix  float64 `json:"first_seen_unix"`
	LastSeenUnix   float64 `json:"last_seen_unix"`
	TrackCount     int64   `json:"track_count"`
	ViolationCount int64   `json:"violation_count"`
}

// GetPlate returns the registry row for a normalized plate, or ErrNotFound.
func (s *Store) GetPlate(plateText string) (*PlateRecord, error) {
	var rec PlateRecord
	err := s.db.QueryRow(`
		SELECT plate_text, first_seen_unix, last_seen_unix, track_count, violation_count
		FROM plates WHERE plate_text = ?
	`, plateText).Scan(&rec.PlateText, &rec.FirstSeenUnix, &rec.LastSeenUnix, &rec.TrackCount, &rec.ViolationCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plate %q: %w", plateText, err)
	}
	return &rec, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
