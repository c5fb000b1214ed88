// Package api serves the violation log over HTTP: JSON endpoints for events,
// streams and summaries, CSV export, and the go-echarts dashboard pages.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/violation.report/internal/db"
	"github.com/banshee-data/violation.report/internal/traffic"
	"github.com/banshee-data/violation.report/internal/units"
	"github.com/banshee-data/violation.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the persisted violation log and the live stream manager.
// The manager may be nil for read-only deployments (e.g. report tooling
// pointed at a copied database).
type Server struct {
	store   *db.Store
	manager *traffic.Manager
	units   string
}

// NewServer builds a server. units is the default display unit for speeds;
// the database always stores km/h.
func NewServer(store *db.Store, manager *traffic.Manager, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.KMPH
	}
	return &Server{store: store, manager: manager, units: displayUnits}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/streams", s.handleStreams)
	mux.HandleFunc("/api/streams/", s.handleStreamSummary)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/export/events.csv", s.handleExportCSV)
	mux.HandleFunc("/charts/violations", s.handleViolationCharts)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// streamsResponse pairs live pipeline state with persisted session history.
type streamsResponse struct {
	Live     []traffic.StreamStatus `json:"live"`
	Sessions []db.SessionRecord     `json:"sessions"`
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := streamsResponse{Live: []traffic.StreamStatus{}}
	if s.manager != nil {
		resp.Live = s.manager.Status()
	}
	sessions, err := s.store.ListSessions(r.URL.Query().Get("stream"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Sessions = sessions
	s.writeJSON(w, resp)
}

// handleStreamSummary serves /api/streams/{id}/summary.
func (s *Server) handleStreamSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/streams/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "summary" {
		s.writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	summary, err := s.store.SummarizeStream(parts[0])
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown stream %q", parts[0]))
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, summary)
}

// displayEvent is an EventRecord with its speed converted to the requested
// display unit.
type displayEvent struct {
	db.EventRecord
	SpeedUnit string `json:"speed_unit,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()

	query := db.EventQuery{
		StreamID: q.Get("stream"),
		Kind:     q.Get("kind"),
	}
	if v := q.Get("since_frame"); v != "" {
		frame, err := strconv.ParseInt(v, 10, 64)
		if err != nil || frame < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid since_frame")
			return
		}
		query.SinceFrame = frame
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = limit
	}

	displayUnit := s.units
	if v := q.Get("units"); v != "" {
		if !units.IsValid(v) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid units %q, expected one of: %s", v, units.GetValidUnitsString()))
			return
		}
		displayUnit = v
	}

	events, err := s.store.ListEvents(query)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]displayEvent, 0, len(events))
	for _, e := range events {
		d := displayEvent{EventRecord: e}
		if e.SpeedKMH != nil {
			converted := units.ConvertSpeed(*e.SpeedKMH, displayUnit)
			d.SpeedKMH = &converted
			d.SpeedUnit = displayUnit
		}
		out = append(out, d)
	}
	s.writeJSON(w, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = parsed
	}
	summary, err := s.store.Summarize(hours)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, summary)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stream := r.URL.Query().Get("stream")
	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		if !units.IsTimezoneValid(tz) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid timezone %q (common values: %s)", tz, units.GetValidTimezonesString()))
			return
		}
		loc, _ = time.LoadLocation(tz)
	}
	filename := "violations.csv"
	if stream != "" {
		filename = fmt.Sprintf("violations-%s.csv", stream)
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := s.store.ExportEventsCSV(w, stream, loc); err != nil {
		// Headers are gone; the best we can do is log it.
		log.Printf("CSV export failed: %v", err)
	}
}
