// Command rollup-backfill rebuilds hourly violation rollups for a time range.
// Useful after a bulk import or a schema fix; RunRange is idempotent so
// overlapping reruns are safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/violation.report/internal/db"
)

func main() {
	var dbPath string
	var startStr string
	var endStr string
	var full bool

	flag.StringVar(&dbPath, "db", "violations.db", "path to sqlite db")
	flag.StringVar(&startStr, "start", "", "start time (RFC3339)")
	flag.StringVar(&endStr, "end", "", "end time (RFC3339)")
	flag.BoolVar(&full, "full", false, "rebuild rollups for the full event history")
	flag.Parse()

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	w := db.NewRollupWorker(dbConn)

	if full {
		if err := w.RunFullHistory(context.TODO()); err != nil {
			log.Fatalf("full history rebuild failed: %v", err)
		}
		fmt.Println("backfill complete")
		return
	}

	if startStr == "" || endStr == "" {
		log.Fatalf("start and end must be provided (or pass -full)")
	}
	startT, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		log.Fatalf("invalid start: %v", err)
	}
	endT, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		log.Fatalf("invalid end: %v", err)
	}

	// run the backfill in windows until the range is covered
	t := startT.UTC()
	for t.Before(endT.UTC()) {
		windowStart := t
		windowEnd := t.Add(w.Window)
		if windowEnd.After(endT.UTC()) {
			windowEnd = endT.UTC()
		}
		fmt.Printf("backfilling window %s -> %s\n", windowStart, windowEnd)
		if err := w.RunRange(context.TODO(), float64(windowStart.Unix()), float64(windowEnd.Unix())); err != nil {
			log.Fatalf("runrange failed: %v", err)
		}
		t = windowEnd
	}

	fmt.Println("backfill complete")
}
