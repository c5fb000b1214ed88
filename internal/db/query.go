package db

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// EventRecord is one persisted violation event as served by the API and the
// CSV export. Nullable evidence fields use pointers so JSON omits them.
type EventRecord struct {
	EventID        string   `json:"event_id"`
	StreamID       string   `json:"stream_id"`
	TrackID        string   `json:"track_id"`
	Kind           string   `json:"kind"`
	FrameIndex     int64    `json:"frame_index"`
	TSUnix         float64  `json:"ts_unix"`
	VehicleClass   string   `json:"vehicle_class,omitempty"`
	Confidence     float64  `json:"confidence"`
	SpeedKMH       *float64 `json:"speed_kmh,omitempty"`
	PlateText      string   `json:"plate_text,omitempty"`
	PlateOutcome   string   `json:"plate_outcome,omitempty"`
	CrossingX      *float64 `json:"crossing_x,omitempty"`
	CrossingY      *float64 `json:"crossing_y,omitempty"`
	EvidenceX      float64  `json:"evidence_x"`
	EvidenceY      float64  `json:"evidence_y"`
	EvidenceW      float64  `json:"evidence_w"`
	EvidenceH      float64  `json:"evidence_h"`
	RepeatOffender bool     `json:"repeat_offender"`
}

// EventQuery filters ListEvents. Zero values mean "no filter"; Limit 0 uses
// the default page size.
type EventQuery struct {
	StreamID   string
	Kind       string
	SinceFrame int64 // return events with frame_index >= SinceFrame when > 0
	SinceUnix  float64
	Limit      int
}

const (
	defaultEventLimit = 200
	maxEventLimit     = 5000
)

// ListEvents returns matching events ordered by timestamp then frame index,
// oldest first, so per-stream pages preserve the pipeline's emission order.
func (s *Store) ListEvents(q EventQuery) ([]EventRecord, error) {
	var where []string
	var args []interface{}
	if q.StreamID != "" {
		where = append(where, "stream_id = ?")
		args = append(args, q.StreamID)
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.SinceFrame > 0 {
		where = append(where, "frame_index >= ?")
		args = append(args, q.SinceFrame)
	}
	if q.SinceUnix > 0 {
		where = append(where, "ts_unix >= ?")
		args = append(args, q.SinceUnix)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	args = append(args, limit)

	query := `
		SELECT event_id, stream_id, track_id, kind, frame_index, ts_unix,
		       vehicle_class, confidence, speed_kmh, plate_text, plate_outcome,
		       crossing_x, crossing_y,
		       evidence_x, evidence_y, evidence_w, evidence_h,
		       repeat_offender
		FROM violation_events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_unix, frame_index LIMIT ?"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (EventRecord, error) {
	var rec EventRecord
	var vehicleClass, plateText, plateOutcome sql.NullString
	var speed, crossingX, crossingY sql.NullFloat64
	var repeat int
	if err := rows.Scan(
		&rec.EventID, &rec.StreamID, &rec.TrackID, &rec.Kind, &rec.FrameIndex, &rec.TSUnix,
		&vehicleClass, &rec.Confidence, &speed, &plateText, &plateOutcome,
		&crossingX, &crossingY,
		&rec.EvidenceX, &rec.EvidenceY, &rec.EvidenceW, &rec.EvidenceH,
		&repeat,
	); err != nil {
		return rec, fmt.Errorf("failed to scan event row: %w", err)
	}
	rec.VehicleClass = vehicleClass.String
	rec.PlateText = plateText.String
	rec.PlateOutcome = plateOutcome.String
	if speed.Valid {
		rec.SpeedKMH = &speed.Float64
	}
	if crossingX.Valid {
		rec.CrossingX = &crossingX.Float64
	}
	if crossingY.Valid {
		rec.CrossingY = &crossingY.Float64
	}
	rec.RepeatOffender = repeat != 0
	return rec, nil
}

// Summary aggregates the violation log over a trailing window for the
// dashboard and the /api/summary endpoint.
type Summary struct {
	SinceUnix       float64           `json:"since_unix"`
	TotalEvents     int64             `json:"total_events"`
	CountsByKind    map[string]int64  `json:"counts_by_kind"`
	RepeatOffenders int64             `json:"repeat_offenders"`
	Speed           *SpeedPercentiles `json:"speed_percentiles,omitempty"`
}

// Summarize computes event counts by kind and speed percentiles over the last
// `hours` hours (all history when hours <= 0).
func (s *Store) Summarize(hours int) (*Summary, error) {
	var since float64
	if hours > 0 {
		since = unixSeconds(time.Now().Add(-time.Duration(hours) * time.Hour))
	}

	summary := &Summary{
		SinceUnix:    since,
		CountsByKind: make(map[string]int64),
	}

	rows, err := s.db.Query(`
		SELECT kind, COUNT(*) FROM violation_events
		WHERE ts_unix >= ? GROUP BY kind
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by kind: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		summary.CountsByKind[kind] = count
		summary.TotalEvents += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM violation_events
		WHERE ts_unix >= ? AND repeat_offender = 1
	`, since).Scan(&summary.RepeatOffenders); err != nil {
		return nil, fmt.Errorf("failed to count repeat offenders: %w", err)
	}

	speeds, err := s.speedSamples(since)
	if err != nil {
		return nil, err
	}
	if pct, ok := ComputeSpeedPercentiles(speeds); ok {
		summary.Speed = &pct
	}
	return summary, nil
}

// speedSamples returns all recorded speed-event measurements since the cutoff.
func (s *Store) speedSamples(since float64) ([]float64, error) {
	rows, err := s.db.Query(`
		SELECT speed_kmh FROM violation_events
		WHERE ts_unix >= ? AND speed_kmh IS NOT NULL
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query speed samples: %w", err)
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan speed sample: %w", err)
		}
		speeds = append(speeds, v)
	}
	return speeds, rows.Err()
}

// SessionRecord is one stream session row.
type SessionRecord struct {
	SessionID       string   `json:"session_id"`
	StreamID        string   `json:"stream_id"`
	FrameRate       float64  `json:"frame_rate"`
	StartedUnix     float64  `json:"started_unix"`
	EndedUnix       *float64 `json:"ended_unix,omitempty"`
	FramesProcessed int64    `json:"frames_processed"`
	EventsEmitted   int64    `json:"events_emitted"`
	TracksStarted   int64    `json:"tracks_started"`
	TracksPurged    int64    `json:"tracks_purged"`
	SinkErrors      int64    `json:"sink_errors"`
}

// ListSessions returns sessions newest first, optionally filtered by stream.
func (s *Store) ListSessions(streamID string) ([]SessionRecord, error) {
	query := `
		SELECT session_id, stream_id, frame_rate, started_unix, ended_unix,
		       frames_processed, events_emitted, tracks_started, tracks_purged, sink_errors
		FROM stream_sessions
	`
	var args []interface{}
	if streamID != "" {
		query += " WHERE stream_id = ?"
		args = append(args, streamID)
	}
	query += " ORDER BY started_unix DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var ended sql.NullFloat64
		if err := rows.Scan(
			&rec.SessionID, &rec.StreamID, &rec.FrameRate, &rec.StartedUnix, &ended,
			&rec.FramesProcessed, &rec.EventsEmitted, &rec.TracksStarted, &rec.TracksPurged, &rec.SinkErrors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if ended.Valid {
			rec.EndedUnix = &ended.Float64
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// StreamSummary describes one stream's history for the API.
type StreamSummary struct {
	StreamID     string            `json:"stream_id"`
	Sessions     int64             `json:"sessions"`
	Tracks       int64             `json:"tracks"`
	CountsByKind map[string]int64  `json:"counts_by_kind"`
	Speed        *SpeedPercentiles `json:"speed_percentiles,omitempty"`
}

// SummarizeStream aggregates a single stream's sessions, tracks and events.
// Returns ErrNotFound when the stream has never been seen.
func (s *Store) SummarizeStream(streamID string) (*StreamSummary, error) {
	summary := &StreamSummary{
		StreamID:     streamID,
		CountsByKind: make(map[string]int64),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM stream_sessions WHERE stream_id = ?`, streamID).Scan(&summary.Sessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions for %s: %w", streamID, err)
	}
	if summary.Sessions == 0 {
		return nil, fmt.Errorf("stream %s: %w", streamID, ErrNotFound)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM track_summaries WHERE stream_id = ?`, streamID).Scan(&summary.Tracks); err != nil {
		return nil, fmt.Errorf("failed to count tracks for %s: %w", streamID, err)
	}

	rows, err := s.db.Query(`
		SELECT kind, COUNT(*) FROM violation_events WHERE stream_id = ? GROUP BY kind
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events for %s: %w", streamID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stream kind count: %w", err)
		}
		summary.CountsByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	speedRows, err := s.db.Query(`
		SELECT speed_kmh FROM violation_events
		WHERE stream_id = ? AND speed_kmh IS NOT NULL
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream speeds for %s: %w", streamID, err)
	}
	defer speedRows.Close()
	var speeds []float64
	for speedRows.Next() {
		var v float64
		if err := speedRows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan stream speed: %w", err)
		}
		speeds = append(speeds, v)
	}
	if err := speedRows.Err(); err != nil {
		return nil, err
	}
	if pct, ok := ComputeSpeedPercentiles(speeds); ok {
		summary.Speed = &pct
	}
	return summary, nil
}

// csvHeader matches the original operator log column layout, extended with
// the repeat-offender flag.
var csvHeader = []string{
	"timestamp", "stream_id", "track_id", "kind", "frame_index",
	"vehicle_class", "confidence", "speed_kmh", "plate_text", "plate_outcome",
	"repeat_offender",
}

// ExportEventsCSV streams the violation log as CSV, oldest first. An empty
// streamID exports every stream; a nil loc renders timestamps in UTC.
func (s *Store) ExportEventsCSV(w io.Writer, streamID string, loc *time.Location) error {
	events, err := s.ListEvents(EventQuery{StreamID: streamID, Limit: maxEventLimit})
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.UTC
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range events {
		ts := time.Unix(0, int64(e.TSUnix*1e9)).In(loc).Format(time.RFC3339)
		speed := ""
		if e.SpeedKMH != nil {
			speed = strconv.FormatFloat(*e.SpeedKMH, 'f', 1, 64)
		}
		row := []string{
			ts, e.StreamID, e.TrackID, e.Kind, strconv.FormatInt(e.FrameIndex, 10),
			e.VehicleClass, strconv.FormatFloat(e.Confidence, 'f', 2, 64),
			speed, e.PlateText, e.PlateOutcome,
			strconv.FormatBool(e.RepeatOffender),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
