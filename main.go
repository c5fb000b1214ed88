// Command violationd is the traffic violation detection daemon. It ingests
// per-frame detections for one or more camera streams, runs the violation
// pipeline (red-light, speed, helmet, plate), persists de-duplicated events
// to sqlite and serves the HTTP API and dashboard.
//
// Usage:
//
//	violationd [flags]
//	violationd migrate <up|down|status|version|force|baseline|detect>
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/violation.report/internal/api"
	"github.com/banshee-data/violation.report/internal/config"
	"github.com/banshee-data/violation.report/internal/db"
	"github.com/banshee-data/violation.report/internal/ingest"
	"github.com/banshee-data/violation.report/internal/ocr"
	"github.com/banshee-data/violation.report/internal/traffic"
	"github.com/banshee-data/violation.report/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	dbPath       = flag.String("db", "violations.db", "Path to the sqlite database")
	tuningPath   = flag.String("tuning", "", "Path to a tuning config JSON (defaults when empty)")
	displayUnits = flag.String("units", "kmph", "Display units for speeds (mps, mph, kmph, kph)")
	devMode      = flag.Bool("dev", false, "Run in dev mode (migrations from the source tree)")

	udpListen      = flag.String("udp-listen", ":9101", "UDP frame feed listen address (empty disables)")
	replayPath     = flag.String("replay", "", "JSONL frame capture to replay at startup")
	replayRealtime = flag.Bool("replay-realtime", false, "Pace replay at each stream's nominal fps")
	kafkaEnabled   = flag.Bool("kafka", false, "Consume frames from Kafka (configured via KAFKA_* env)")
	pcapPath       = flag.String("pcap", "", "PCAP capture of the UDP feed to replay (requires -tags pcap build)")
	pcapPort       = flag.Int("pcap-port", 9101, "UDP port filter for PCAP replay")

	ocrURL = flag.String("ocr-url", "", "Base URL of the plate OCR service (empty disables OCR)")
)

func main() {
	flag.Parse()

	if flag.Arg(0) == "migrate" {
		db.DevMode = *devMode
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	db.DevMode = *devMode

	tuning := config.DefaultTuningConfig()
	if *tuningPath != "" {
		loaded, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}
	if err := tuning.Validate(); err != nil {
		log.Fatalf("Invalid tuning config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrationsFS, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}
	if err := database.MigrateUp(migrationsFS); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	store := db.NewStore(database)

	base := traffic.PipelineConfigFromTuning("default", tuning)
	base.Persistence = store
	base.Tracks = store
	if *ocrURL != "" {
		ocrClient, err := ocr.NewClient(*ocrURL)
		if err != nil {
			log.Fatalf("Failed to build OCR client: %v", err)
		}
		base.OCR = ocrClient.Func()
	}

	managerConfig := traffic.ManagerConfigFromTuning(tuning)
	managerConfig.Sessions = store

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := traffic.NewManager(ctx, base, managerConfig)

	rollups := db.NewRollupWorker(database)
	rollups.Interval = tuning.GetRollupInterval()
	rollups.Start(ctx)
	defer rollups.Stop()

	log.Printf("violationd %s (%s) starting, db=%s", version.Version, version.GitSHA, *dbPath)

	var wg sync.WaitGroup

	if *udpListen != "" {
		source := ingest.NewUDPSource(ingest.UDPSourceConfig{Address: *udpListen}, manager)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP ingest stopped: %v", err)
			}
		}()
	}

	if *replayPath != "" {
		source := ingest.NewReplaySource(ingest.ReplaySourceConfig{Path: *replayPath, Realtime: *replayRealtime}, manager)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("replay ingest stopped: %v", err)
			}
		}()
	}

	if *kafkaEnabled {
		source, err := ingest.NewKafkaSource(ingest.KafkaConfigFromEnv(), manager)
		if err != nil {
			log.Fatalf("Failed to build Kafka source: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("kafka ingest stopped: %v", err)
			}
		}()
	}

	if *pcapPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := ingest.PCAPReplayConfig{Path: *pcapPath, UDPPort: *pcapPort, Realtime: *replayRealtime}
			if err := ingest.ReplayPCAP(ctx, cfg, manager); err != nil && err != context.Canceled {
				log.Printf("pcap ingest stopped: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(store, manager, *displayUnits).ServeMux()
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}
		go func() {
			log.Printf("HTTP server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	// Flush remaining pipeline state before the process exits so open
	// sessions close cleanly in the store.
	manager.Shutdown()
	log.Printf("Graceful shutdown complete")
	os.Exit(0)
}
