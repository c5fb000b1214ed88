package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.VehicleConfidence == nil || *cfg.VehicleConfidence != 0.5 {
		t.Errorf("Expected VehicleConfidence 0.5, got %v", cfg.VehicleConfidence)
	}
	if cfg.TrafficLightConfidence == nil || *cfg.TrafficLightConfidence != 0.3 {
		t.Errorf("Expected TrafficLightConfidence 0.3, got %v", cfg.TrafficLightConfidence)
	}
	if cfg.HitsToConfirm == nil || *cfg.HitsToConfirm != 2 {
		t.Errorf("Expected HitsToConfirm 2, got %v", cfg.HitsToConfirm)
	}
	if cfg.UsePrediction == nil || *cfg.UsePrediction != true {
		t.Errorf("Expected UsePrediction true, got %v", cfg.UsePrediction)
	}
	if cfg.SpeedLimitKMH == nil || *cfg.SpeedLimitKMH != 40 {
		t.Errorf("Expected SpeedLimitKMH 40, got %v", cfg.SpeedLimitKMH)
	}
	if cfg.RollupInterval == nil || *cfg.RollupInterval != "1h" {
		t.Errorf("Expected RollupInterval '1h', got %v", cfg.RollupInterval)
	}

	// Test getter methods
	if cfg.GetVehicleConfidence() != 0.5 {
		t.Errorf("GetVehicleConfidence() = %f, want 0.5", cfg.GetVehicleConfidence())
	}
	if cfg.GetMaxTracks() != 100 {
		t.Errorf("GetMaxTracks() = %d, want 100", cfg.GetMaxTracks())
	}
	if cfg.GetUsePrediction() != true {
		t.Errorf("GetUsePrediction() = %v, want true", cfg.GetUsePrediction())
	}
	if cfg.GetQueueDepth() != 64 {
		t.Errorf("GetQueueDepth() = %d, want 64", cfg.GetQueueDepth())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Write test config with flat schema
	testJSON := `{
  "vehicle_confidence": 0.65,
  "use_prediction": false,
  "speed_limit_kmh": 60,
  "red_lag_frames": 3,
  "plate_stable_frames": 5,
  "rollup_interval": "30m"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Load the config
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.VehicleConfidence == nil || *cfg.VehicleConfidence != 0.65 {
		t.Errorf("Expected VehicleConfidence 0.65, got %v", cfg.VehicleConfidence)
	}
	if cfg.UsePrediction == nil || *cfg.UsePrediction != false {
		t.Errorf("Expected UsePrediction false, got %v", cfg.UsePrediction)
	}
	if cfg.SpeedLimitKMH == nil || *cfg.SpeedLimitKMH != 60 {
		t.Errorf("Expected SpeedLimitKMH 60, got %v", cfg.SpeedLimitKMH)
	}
	if cfg.RedLagFrames == nil || *cfg.RedLagFrames != 3 {
		t.Errorf("Expected RedLagFrames 3, got %v", cfg.RedLagFrames)
	}
	if cfg.PlateStableFrames == nil || *cfg.PlateStableFrames != 5 {
		t.Errorf("Expected PlateStableFrames 5, got %v", cfg.PlateStableFrames)
	}
	if cfg.RollupInterval == nil || *cfg.RollupInterval != "30m" {
		t.Errorf("Expected RollupInterval '30m', got %v", cfg.RollupInterval)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	// Write invalid JSON
	invalidJSON := `{
  "vehicle_confidence": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "invalid vehicle confidence (too low)",
			cfg: &TuningConfig{
				VehicleConfidence: ptrFloat64(-0.1),
			},
			wantErr: true,
		},
		{
			name: "invalid red confidence (too high)",
			cfg: &TuningConfig{
				RedConfidence: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "head region fraction of zero",
			cfg: &TuningConfig{
				HeadRegionFraction: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "zero max tracks",
			cfg: &TuningConfig{
				MaxTracks: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "zero queue depth",
			cfg: &TuningConfig{
				QueueDepth: ptrInt(0),
			},
			wantErr: true,
		},
		{
			name: "negative frame rate",
			cfg: &TuningConfig{
				FrameRate: ptrFloat64(-25),
			},
			wantErr: true,
		},
		{
			name: "invalid plate pattern",
			cfg: &TuningConfig{
				PlatePattern: ptrString("(["),
			},
			wantErr: true,
		},
		{
			name: "invalid rollup interval",
			cfg: &TuningConfig{
				RollupInterval: ptrString("invalid"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetRollupInterval(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{
			name: "one hour",
			cfg: &TuningConfig{
				RollupInterval: ptrString("1h"),
			},
			want: time.Hour,
		},
		{
			name: "30 minutes",
			cfg: &TuningConfig{
				RollupInterval: ptrString("30m"),
			},
			want: 30 * time.Minute,
		},
		{
			name: "nil pointer returns default",
			cfg:  &TuningConfig{},
			want: time.Hour,
		},
		{
			name: "empty string returns default",
			cfg: &TuningConfig{
				RollupInterval: ptrString(""),
			},
			want: time.Hour,
		},
		{
			name: "invalid duration returns default",
			cfg: &TuningConfig{
				RollupInterval: ptrString("invalid"),
			},
			want: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetRollupInterval()
			if got != tt.want {
				t.Errorf("GetRollupInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetVehicleConfidence() != 0.5 {
		t.Errorf("Expected 0.5, got %f", cfg.GetVehicleConfidence())
	}
	if cfg.GetSpeedLimitKMH() != 40 {
		t.Errorf("Expected 40, got %f", cfg.GetSpeedLimitKMH())
	}
	if cfg.GetUsePrediction() != true {
		t.Errorf("Expected true, got %v", cfg.GetUsePrediction())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetVehicleConfidence() != 0.6 {
		t.Errorf("Expected 0.6, got %f", cfg.GetVehicleConfidence())
	}
	if cfg.GetSpeedLimitKMH() != 60 {
		t.Errorf("Expected 60, got %f", cfg.GetSpeedLimitKMH())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override the speed limit; everything else should
	// keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "speed_limit_kmh": 80
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	// Overridden value
	if cfg.GetSpeedLimitKMH() != 80 {
		t.Errorf("Expected overridden SpeedLimitKMH 80, got %f", cfg.GetSpeedLimitKMH())
	}
	// Default values should be preserved
	if cfg.GetVehicleConfidence() != 0.5 {
		t.Errorf("Expected default VehicleConfidence 0.5, got %f", cfg.GetVehicleConfidence())
	}
	if cfg.GetHitsToConfirm() != 2 {
		t.Errorf("Expected default HitsToConfirm 2, got %d", cfg.GetHitsToConfirm())
	}
	if cfg.GetRollupInterval() != time.Hour {
		t.Errorf("Expected default RollupInterval 1h, got %v", cfg.GetRollupInterval())
	}
	if cfg.GetPlatePattern() != `^[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{4}$` {
		t.Errorf("Expected default PlatePattern, got %q", cfg.GetPlatePattern())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	// Create a file larger than 1MB
	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestAllTuningParams(t *testing.T) {
	// Test that all tunable parameters can be set via JSON
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "all_params.json")

	allParamsJSON := `{
  "vehicle_confidence": 0.55,
  "person_confidence": 0.45,
  "helmet_confidence": 0.4,
  "traffic_light_confidence": 0.25,
  "plate_confidence": 0.35,
  "max_tracks": 50,
  "max_misses": 4,
  "hits_to_confirm": 3,
  "retention_frames": 20,
  "affinity_floor_iou": 0.2,
  "max_centroid_distance": 120,
  "use_prediction": false,
  "line_tolerance_px": 10,
  "red_confidence": 0.4,
  "red_lag_frames": 4,
  "derivation_window": 100,
  "stop_displacement": 3,
  "min_stopped_samples": 8,
  "fallback_fraction": 0.8,
  "fallback_inset_px": 40,
  "pixel_to_meter_ratio": 0.04,
  "speed_limit_kmh": 50,
  "speed_window": 7,
  "speed_sustain_frames": 4,
  "min_speed_kmh": 3,
  "max_speed_kmh": 180,
  "helmet_window": 6,
  "head_region_fraction": 0.25,
  "containment_ratio": 0.7,
  "adjacency_gap_px": 25,
  "plate_stable_frames": 4,
  "plate_bind_distance_px": 80,
  "ocr_confidence": 0.4,
  "plate_pattern": "^[A-Z]{3}[0-9]{4}$",
  "frame_rate": 30,
  "evidence_margin_px": 15,
  "queue_depth": 128,
  "rollup_interval": "2h"
}`
	if err := os.WriteFile(configPath, []byte(allParamsJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify all fields are loaded correctly
	if cfg.VehicleConfidence == nil || *cfg.VehicleConfidence != 0.55 {
		t.Errorf("VehicleConfidence = %v, want 0.55", cfg.VehicleConfidence)
	}
	if cfg.PersonConfidence == nil || *cfg.PersonConfidence != 0.45 {
		t.Errorf("PersonConfidence = %v, want 0.45", cfg.PersonConfidence)
	}
	if cfg.HelmetConfidence == nil || *cfg.HelmetConfidence != 0.4 {
		t.Errorf("HelmetConfidence = %v, want 0.4", cfg.HelmetConfidence)
	}
	if cfg.TrafficLightConfidence == nil || *cfg.TrafficLightConfidence != 0.25 {
		t.Errorf("TrafficLightConfidence = %v, want 0.25", cfg.TrafficLightConfidence)
	}
	if cfg.PlateConfidence == nil || *cfg.PlateConfidence != 0.35 {
		t.Errorf("PlateConfidence = %v, want 0.35", cfg.PlateConfidence)
	}
	if cfg.MaxTracks == nil || *cfg.MaxTracks != 50 {
		t.Errorf("MaxTracks = %v, want 50", cfg.MaxTracks)
	}
	if cfg.MaxMisses == nil || *cfg.MaxMisses != 4 {
		t.Errorf("MaxMisses = %v, want 4", cfg.MaxMisses)
	}
	if cfg.HitsToConfirm == nil || *cfg.HitsToConfirm != 3 {
		t.Errorf("HitsToConfirm = %v, want 3", cfg.HitsToConfirm)
	}
	if cfg.RetentionFrames == nil || *cfg.RetentionFrames != 20 {
		t.Errorf("RetentionFrames = %v, want 20", cfg.RetentionFrames)
	}
	if cfg.AffinityFloorIoU == nil || *cfg.AffinityFloorIoU != 0.2 {
		t.Errorf("AffinityFloorIoU = %v, want 0.2", cfg.AffinityFloorIoU)
	}
	if cfg.MaxCentroidDistance == nil || *cfg.MaxCentroidDistance != 120 {
		t.Errorf("MaxCentroidDistance = %v, want 120", cfg.MaxCentroidDistance)
	}
	if cfg.UsePrediction == nil || *cfg.UsePrediction != false {
		t.Errorf("UsePrediction = %v, want false", cfg.UsePrediction)
	}
	if cfg.LineTolerancePx == nil || *cfg.LineTolerancePx != 10 {
		t.Errorf("LineTolerancePx = %v, want 10", cfg.LineTolerancePx)
	}
	if cfg.RedConfidence == nil || *cfg.RedConfidence != 0.4 {
		t.Errorf("RedConfidence = %v, want 0.4", cfg.RedConfidence)
	}
	if cfg.RedLagFrames == nil || *cfg.RedLagFrames != 4 {
		t.Errorf("RedLagFrames = %v, want 4", cfg.RedLagFrames)
	}
	if cfg.DerivationWindow == nil || *cfg.DerivationWindow != 100 {
		t.Errorf("DerivationWindow = %v, want 100", cfg.DerivationWindow)
	}
	if cfg.StopDisplacement == nil || *cfg.StopDisplacement != 3 {
		t.Errorf("StopDisplacement = %v, want 3", cfg.StopDisplacement)
	}
	if cfg.MinStoppedSamples == nil || *cfg.MinStoppedSamples != 8 {
		t.Errorf("MinStoppedSamples = %v, want 8", cfg.MinStoppedSamples)
	}
	if cfg.FallbackFraction == nil || *cfg.FallbackFraction != 0.8 {
		t.Errorf("FallbackFraction = %v, want 0.8", cfg.FallbackFraction)
	}
	if cfg.FallbackInsetPx == nil || *cfg.FallbackInsetPx != 40 {
		t.Errorf("FallbackInsetPx = %v, want 40", cfg.FallbackInsetPx)
	}
	if cfg.PixelToMeterRatio == nil || *cfg.PixelToMeterRatio != 0.04 {
		t.Errorf("PixelToMeterRatio = %v, want 0.04", cfg.PixelToMeterRatio)
	}
	if cfg.SpeedLimitKMH == nil || *cfg.SpeedLimitKMH != 50 {
		t.Errorf("SpeedLimitKMH = %v, want 50", cfg.SpeedLimitKMH)
	}
	if cfg.SpeedWindow == nil || *cfg.SpeedWindow != 7 {
		t.Errorf("SpeedWindow = %v, want 7", cfg.SpeedWindow)
	}
	if cfg.SpeedSustainFrames == nil || *cfg.SpeedSustainFrames != 4 {
		t.Errorf("SpeedSustainFrames = %v, want 4", cfg.SpeedSustainFrames)
	}
	if cfg.MinSpeedKMH == nil || *cfg.MinSpeedKMH != 3 {
		t.Errorf("MinSpeedKMH = %v, want 3", cfg.MinSpeedKMH)
	}
	if cfg.MaxSpeedKMH == nil || *cfg.MaxSpeedKMH != 180 {
		t.Errorf("MaxSpeedKMH = %v, want 180", cfg.MaxSpeedKMH)
	}
	if cfg.HelmetWindow == nil || *cfg.HelmetWindow != 6 {
		t.Errorf("HelmetWindow = %v, want 6", cfg.HelmetWindow)
	}
	if cfg.HeadRegionFraction == nil || *cfg.HeadRegionFraction != 0.25 {
		t.Errorf("HeadRegionFraction = %v, want 0.25", cfg.HeadRegionFraction)
	}
	if cfg.ContainmentRatio == nil || *cfg.ContainmentRatio != 0.7 {
		t.Errorf("ContainmentRatio = %v, want 0.7", cfg.ContainmentRatio)
	}
	if cfg.AdjacencyGapPx == nil || *cfg.AdjacencyGapPx != 25 {
		t.Errorf("AdjacencyGapPx = %v, want 25", cfg.AdjacencyGapPx)
	}
	if cfg.PlateStableFrames == nil || *cfg.PlateStableFrames != 4 {
		t.Errorf("PlateStableFrames = %v, want 4", cfg.PlateStableFrames)
	}
	if cfg.PlateBindDistancePx == nil || *cfg.PlateBindDistancePx != 80 {
		t.Errorf("PlateBindDistancePx = %v, want 80", cfg.PlateBindDistancePx)
	}
	if cfg.OCRConfidence == nil || *cfg.OCRConfidence != 0.4 {
		t.Errorf("OCRConfidence = %v, want 0.4", cfg.OCRConfidence)
	}
	if cfg.PlatePattern == nil || *cfg.PlatePattern != "^[A-Z]{3}[0-9]{4}$" {
		t.Errorf("PlatePattern = %v, want ^[A-Z]{3}[0-9]{4}$", cfg.PlatePattern)
	}
	if cfg.FrameRate == nil || *cfg.FrameRate != 30 {
		t.Errorf("FrameRate = %v, want 30", cfg.FrameRate)
	}
	if cfg.EvidenceMarginPx == nil || *cfg.EvidenceMarginPx != 15 {
		t.Errorf("EvidenceMarginPx = %v, want 15", cfg.EvidenceMarginPx)
	}
	if cfg.QueueDepth == nil || *cfg.QueueDepth != 128 {
		t.Errorf("QueueDepth = %v, want 128", cfg.QueueDepth)
	}
	if cfg.RollupInterval == nil || *cfg.RollupInterval != "2h" {
		t.Errorf("RollupInterval = %v, want '2h'", cfg.RollupInterval)
	}
}

func TestGetterDefaults(t *testing.T) {
	// Test that getter methods return expected defaults when pointers are nil
	cfg := &TuningConfig{} // empty config

	if cfg.GetVehicleConfidence() != 0.5 {
		t.Errorf("GetVehicleConfidence() = %f, want 0.5", cfg.GetVehicleConfidence())
	}
	if cfg.GetPersonConfidence() != 0.5 {
		t.Errorf("GetPersonConfidence() = %f, want 0.5", cfg.GetPersonConfidence())
	}
	if cfg.GetHelmetConfidence() != 0.5 {
		t.Errorf("GetHelmetConfidence() = %f, want 0.5", cfg.GetHelmetConfidence())
	}
	if cfg.GetTrafficLightConfidence() != 0.3 {
		t.Errorf("GetTrafficLightConfidence() = %f, want 0.3", cfg.GetTrafficLightConfidence())
	}
	if cfg.GetPlateConfidence() != 0.3 {
		t.Errorf("GetPlateConfidence() = %f, want 0.3", cfg.GetPlateConfidence())
	}
	if cfg.GetMaxTracks() != 100 {
		t.Errorf("GetMaxTracks() = %d, want 100", cfg.GetMaxTracks())
	}
	if cfg.GetMaxMisses() != 5 {
		t.Errorf("GetMaxMisses() = %d, want 5", cfg.GetMaxMisses())
	}
	if cfg.GetHitsToConfirm() != 2 {
		t.Errorf("GetHitsToConfirm() = %d, want 2", cfg.GetHitsToConfirm())
	}
	if cfg.GetRetentionFrames() != 10 {
		t.Errorf("GetRetentionFrames() = %d, want 10", cfg.GetRetentionFrames())
	}
	if cfg.GetAffinityFloorIoU() != 0.1 {
		t.Errorf("GetAffinityFloorIoU() = %f, want 0.1", cfg.GetAffinityFloorIoU())
	}
	if cfg.GetMaxCentroidDistance() != 100 {
		t.Errorf("GetMaxCentroidDistance() = %f, want 100", cfg.GetMaxCentroidDistance())
	}
	if cfg.GetUsePrediction() != true {
		t.Errorf("GetUsePrediction() = %v, want true", cfg.GetUsePrediction())
	}
	if cfg.GetLineTolerancePx() != 15 {
		t.Errorf("GetLineTolerancePx() = %f, want 15", cfg.GetLineTolerancePx())
	}
	if cfg.GetRedConfidence() != 0.3 {
		t.Errorf("GetRedConfidence() = %f, want 0.3", cfg.GetRedConfidence())
	}
	if cfg.GetRedLagFrames() != 2 {
		t.Errorf("GetRedLagFrames() = %d, want 2", cfg.GetRedLagFrames())
	}
	if cfg.GetDerivationWindow() != 50 {
		t.Errorf("GetDerivationWindow() = %d, want 50", cfg.GetDerivationWindow())
	}
	if cfg.GetStopDisplacement() != 2 {
		t.Errorf("GetStopDisplacement() = %f, want 2", cfg.GetStopDisplacement())
	}
	if cfg.GetMinStoppedSamples() != 5 {
		t.Errorf("GetMinStoppedSamples() = %d, want 5", cfg.GetMinStoppedSamples())
	}
	if cfg.GetFallbackFraction() != 0.75 {
		t.Errorf("GetFallbackFraction() = %f, want 0.75", cfg.GetFallbackFraction())
	}
	if cfg.GetFallbackInsetPx() != 50 {
		t.Errorf("GetFallbackInsetPx() = %f, want 50", cfg.GetFallbackInsetPx())
	}
	if cfg.GetPixelToMeterRatio() != 0.05 {
		t.Errorf("GetPixelToMeterRatio() = %f, want 0.05", cfg.GetPixelToMeterRatio())
	}
	if cfg.GetSpeedLimitKMH() != 40 {
		t.Errorf("GetSpeedLimitKMH() = %f, want 40", cfg.GetSpeedLimitKMH())
	}
	if cfg.GetSpeedWindow() != 5 {
		t.Errorf("GetSpeedWindow() = %d, want 5", cfg.GetSpeedWindow())
	}
	if cfg.GetSpeedSustainFrames() != 3 {
		t.Errorf("GetSpeedSustainFrames() = %d, want 3", cfg.GetSpeedSustainFrames())
	}
	if cfg.GetMinSpeedKMH() != 5 {
		t.Errorf("GetMinSpeedKMH() = %f, want 5", cfg.GetMinSpeedKMH())
	}
	if cfg.GetMaxSpeedKMH() != 200 {
		t.Errorf("GetMaxSpeedKMH() = %f, want 200", cfg.GetMaxSpeedKMH())
	}
	if cfg.GetHelmetWindow() != 5 {
		t.Errorf("GetHelmetWindow() = %d, want 5", cfg.GetHelmetWindow())
	}
	if cfg.GetHeadRegionFraction() != 0.3 {
		t.Errorf("GetHeadRegionFraction() = %f, want 0.3", cfg.GetHeadRegionFraction())
	}
	if cfg.GetContainmentRatio() != 0.6 {
		t.Errorf("GetContainmentRatio() = %f, want 0.6", cfg.GetContainmentRatio())
	}
	if cfg.GetAdjacencyGapPx() != 20 {
		t.Errorf("GetAdjacencyGapPx() = %f, want 20", cfg.GetAdjacencyGapPx())
	}
	if cfg.GetPlateStableFrames() != 3 {
		t.Errorf("GetPlateStableFrames() = %d, want 3", cfg.GetPlateStableFrames())
	}
	if cfg.GetPlateBindDistancePx() != 100 {
		t.Errorf("GetPlateBindDistancePx() = %f, want 100", cfg.GetPlateBindDistancePx())
	}
	if cfg.GetOCRConfidence() != 0.3 {
		t.Errorf("GetOCRConfidence() = %f, want 0.3", cfg.GetOCRConfidence())
	}
	if cfg.GetPlatePattern() != `^[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{4}$` {
		t.Errorf("GetPlatePattern() = %q, want default pattern", cfg.GetPlatePattern())
	}
	if cfg.GetFrameRate() != 25 {
		t.Errorf("GetFrameRate() = %f, want 25", cfg.GetFrameRate())
	}
	if cfg.GetEvidenceMarginPx() != 20 {
		t.Errorf("GetEvidenceMarginPx() = %f, want 20", cfg.GetEvidenceMarginPx())
	}
	if cfg.GetQueueDepth() != 64 {
		t.Errorf("GetQueueDepth() = %d, want 64", cfg.GetQueueDepth())
	}
	if cfg.GetRollupInterval() != time.Hour {
		t.Errorf("GetRollupInterval() = %v, want 1h", cfg.GetRollupInterval())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	// Runs from internal/config, so the ../../ candidate should resolve.
	cfg := MustLoadDefaultConfig()
	if cfg.GetSpeedLimitKMH() != 40 {
		t.Errorf("Expected 40, got %f", cfg.GetSpeedLimitKMH())
	}
}
