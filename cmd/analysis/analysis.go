// Command analysis renders the violations dashboard to a standalone HTML
// file from an existing database, for reporting without running the daemon.
package main

import (
	"flag"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/banshee-data/violation.report/internal/api"
	"github.com/banshee-data/violation.report/internal/db"
)

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		log.Printf("Unsupported platform: %s", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

func main() {
	var dbPath string
	var outPath string
	var stream string
	var hours int
	var open bool

	flag.StringVar(&dbPath, "db", "violations.db", "path to sqlite db")
	flag.StringVar(&outPath, "out", "violations-report.html", "output HTML file")
	flag.StringVar(&stream, "stream", "", "limit the report to one stream")
	flag.IntVar(&hours, "hours", 48, "lookback window in hours")
	flag.BoolVar(&open, "open", false, "open the report in a browser")
	flag.Parse()

	dbConn, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer dbConn.Close()

	store := db.NewStore(dbConn)

	page, err := api.BuildDashboardPage(store, stream, hours)
	if err != nil {
		log.Fatalf("build report: %v", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create %s: %v", outPath, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		log.Fatalf("render report: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", outPath, err)
	}
	log.Printf("report written to %s", outPath)

	if open {
		abs, err := filepath.Abs(outPath)
		if err != nil {
			log.Fatalf("resolve %s: %v", outPath, err)
		}
		openBrowser("file://" + abs)
	}
}
