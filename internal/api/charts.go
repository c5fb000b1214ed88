package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/banshee-data/violation.report/internal/db"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// violationKinds fixes the series order across the dashboard charts.
var violationKinds = []string{"red_light", "speed", "helmet", "plate"}

// handleViolationCharts renders the operator dashboard: stacked hourly
// violation counts from the rollup table, a kind-share pie, and a histogram
// of measured speeds for speed events.
// Query params:
//   - stream (optional; all streams when empty)
//   - hours (optional; default 48, max 7 days)
func (s *Server) handleViolationCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stream := r.URL.Query().Get("stream")

	hours := 48
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 24*7 {
			hours = parsed
		}
	}
	page, err := BuildDashboardPage(s.store, stream, hours)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(w); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render charts: %v", err))
	}
}

// BuildDashboardPage assembles the dashboard charts for the given stream and
// lookback window. Shared between the live /charts/violations route and the
// offline analysis report.
func BuildDashboardPage(store *db.Store, stream string, hours int) (*components.Page, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()

	rollups, err := store.ListRollups(stream, since)
	if err != nil {
		return nil, err
	}
	speeds, err := speedSamplesForChart(store, stream, float64(since))
	if err != nil {
		return nil, err
	}

	title := "All streams"
	if stream != "" {
		title = fmt.Sprintf("Stream %s", stream)
	}

	page := components.NewPage()
	page.SetPageTitle("Violations Dashboard")
	page.AddCharts(
		hourlyCountsChart(rollups, title, hours),
		kindShareChart(rollups, title),
		speedHistogramChart(speeds, title),
	)
	return page, nil
}

// speedSamplesForChart pulls measured speeds of speed events since the
// cutoff, optionally per stream.
func speedSamplesForChart(store *db.Store, stream string, since float64) ([]float64, error) {
	events, err := store.ListEvents(db.EventQuery{StreamID: stream, Kind: "speed", SinceUnix: since, Limit: 5000})
	if err != nil {
		return nil, err
	}
	var speeds []float64
	for _, e := range events {
		if e.SpeedKMH != nil {
			speeds = append(speeds, *e.SpeedKMH)
		}
	}
	return speeds, nil
}

// hourlyCountsChart builds the stacked per-kind bar chart over hour buckets.
func hourlyCountsChart(rollups []db.RollupRecord, subtitle string, hours int) *charts.Bar {
	// bucket -> kind -> count, buckets sorted ascending
	counts := make(map[int64]map[string]int64)
	for _, r := range rollups {
		if counts[r.BucketUnix] == nil {
			counts[r.BucketUnix] = make(map[string]int64)
		}
		counts[r.BucketUnix][r.Kind] += r.EventCount
	}
	buckets := make([]int64, 0, len(counts))
	for b := range counts {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = time.Unix(b, 0).UTC().Format("01-02 15:04")
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Hourly violations",
			Subtitle: fmt.Sprintf("%s, last %dh", subtitle, hours),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)
	for _, kind := range violationKinds {
		data := make([]opts.BarData, len(buckets))
		for i, b := range buckets {
			data[i] = opts.BarData{Value: counts[b][kind]}
		}
		bar.AddSeries(kind, data, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	}
	return bar
}

// kindShareChart builds the violation-kind share pie.
func kindShareChart(rollups []db.RollupRecord, subtitle string) *charts.Pie {
	totals := make(map[string]int64)
	for _, r := range rollups {
		totals[r.Kind] += r.EventCount
	}

	var data []opts.PieData
	for _, kind := range violationKinds {
		if totals[kind] > 0 {
			data = append(data, opts.PieData{Name: kind, Value: totals[kind]})
		}
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "550px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Violations by kind", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("kind", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}"}))
	return pie
}

// speedHistogramChart buckets measured speeds into 10 km/h bins.
func speedHistogramChart(speeds []float64, subtitle string) *charts.Bar {
	const binWidth = 10.0
	bins := make(map[int]int64)
	maxBin := 0
	for _, v := range speeds {
		bin := int(v / binWidth)
		bins[bin]++
		if bin > maxBin {
			maxBin = bin
		}
	}

	labels := make([]string, 0, maxBin+1)
	data := make([]opts.BarData, 0, maxBin+1)
	for bin := 0; bin <= maxBin; bin++ {
		labels = append(labels, fmt.Sprintf("%d-%d", bin*int(binWidth), (bin+1)*int(binWidth)))
		data = append(data, opts.BarData{Value: bins[bin]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "550px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Measured speeds (km/h)", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("events", data)
	return bar
}
