// Command track-plot renders per-stream speed scatter plots from the
// track_summaries table. Each PNG shows p50/p85/max speeds of completed
// tracks against the frame index they finished on, which makes speeding
// windows and tracker glitches easy to spot.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/violation.report/internal/db"
)

type trackPoint struct {
	lastFrame float64
	p50       float64
	p85       float64
	max       float64
}

func main() {
	var dbPath string
	var outDir string
	var stream string
	var limitPx float64

	flag.StringVar(&dbPath, "db", "violations.db", "path to sqlite db")
	flag.StringVar(&outDir, "out", "plots", "output directory for PNGs")
	flag.StringVar(&stream, "stream", "", "limit to one stream")
	flag.Float64Var(&limitPx, "limit", 0, "draw a speed limit reference line at this km/h (0 disables)")
	flag.Parse()

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	byStream, err := loadTracks(dbConn, stream)
	if err != nil {
		log.Fatalf("load tracks: %v", err)
	}
	if len(byStream) == 0 {
		log.Println("no track summaries with speed data found")
		return
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	for streamID, points := range byStream {
		file := filepath.Join(outDir, fmt.Sprintf("speeds_%s.png", streamID))
		if err := plotStream(streamID, points, limitPx, file); err != nil {
			log.Fatalf("plot stream %s: %v", streamID, err)
		}
		log.Printf("wrote %s (%d tracks)", file, len(points))
	}
}

func loadTracks(dbConn *db.DB, stream string) (map[string][]trackPoint, error) {
	query := `SELECT stream_id, last_frame, p50_speed_kmh, p85_speed_kmh, max_speed_kmh
		FROM track_summaries
		WHERE max_speed_kmh IS NOT NULL`
	args := []any{}
	if stream != "" {
		query += ` AND stream_id = ?`
		args = append(args, stream)
	}
	query += ` ORDER BY stream_id, last_frame`

	rows, err := dbConn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStream := make(map[string][]trackPoint)
	for rows.Next() {
		var streamID string
		var pt trackPoint
		var p50, p85 sql.NullFloat64
		if err := rows.Scan(&streamID, &pt.lastFrame, &p50, &p85, &pt.max); err != nil {
			return nil, err
		}
		pt.p50 = p50.Float64
		pt.p85 = p85.Float64
		byStream[streamID] = append(byStream[streamID], pt)
	}
	return byStream, rows.Err()
}

func plotStream(streamID string, points []trackPoint, limit float64, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Stream %s - Track Speeds", streamID)
	p.X.Label.Text = "Last frame"
	p.Y.Label.Text = "Speed (km/h)"

	series := []struct {
		name  string
		color color.Color
		pick  func(trackPoint) float64
	}{
		{"p50", color.RGBA{B: 200, A: 255}, func(t trackPoint) float64 { return t.p50 }},
		{"p85", color.RGBA{R: 220, G: 140, A: 255}, func(t trackPoint) float64 { return t.p85 }},
		{"max", color.RGBA{R: 200, A: 255}, func(t trackPoint) float64 { return t.max }},
	}

	for _, s := range series {
		pts := make(plotter.XYs, 0, len(points))
		for _, t := range points {
			v := s.pick(t)
			if v <= 0 {
				continue
			}
			pts = append(pts, plotter.XY{X: t.lastFrame, Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = s.color
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add(s.name, scatter)
	}

	if limit > 0 {
		maxFrame := points[len(points)-1].lastFrame
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: limit}, {X: maxFrame, Y: limit}})
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(line)
		p.Legend.Add("limit", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(14*vg.Inch, 6*vg.Inch, file)
}
