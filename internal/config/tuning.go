package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/traffic/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Intake confidence gates
	VehicleConfidence      *float64 `json:"vehicle_confidence,omitempty"`
	PersonConfidence       *float64 `json:"person_confidence,omitempty"`
	HelmetConfidence       *float64 `json:"helmet_confidence,omitempty"`
	TrafficLightConfidence *float64 `json:"traffic_light_confidence,omitempty"`
	PlateConfidence        *float64 `json:"plate_confidence,omitempty"`

	// Track association params
	MaxTracks           *int     `json:"max_tracks,omitempty"`
	MaxMisses           *int     `json:"max_misses,omitempty"`
	HitsToConfirm       *int     `json:"hits_to_confirm,omitempty"`
	RetentionFrames     *int64   `json:"retention_frames,omitempty"`
	AffinityFloorIoU    *float64 `json:"affinity_floor_iou,omitempty"`
	MaxCentroidDistance *float64 `json:"max_centroid_distance,omitempty"`
	UsePrediction       *bool    `json:"use_prediction,omitempty"`

	// Violation line params
	LineTolerancePx   *float64 `json:"line_tolerance_px,omitempty"`
	RedConfidence     *float64 `json:"red_confidence,omitempty"`
	RedLagFrames      *int64   `json:"red_lag_frames,omitempty"`
	DerivationWindow  *int64   `json:"derivation_window,omitempty"`
	StopDisplacement  *float64 `json:"stop_displacement,omitempty"`
	MinStoppedSamples *int     `json:"min_stopped_samples,omitempty"`
	FallbackFraction  *float64 `json:"fallback_fraction,omitempty"`
	FallbackInsetPx   *float64 `json:"fallback_inset_px,omitempty"`

	// Speed estimation params
	PixelToMeterRatio  *float64 `json:"pixel_to_meter_ratio,omitempty"`
	SpeedLimitKMH      *float64 `json:"speed_limit_kmh,omitempty"`
	SpeedWindow        *int     `json:"speed_window,omitempty"`
	SpeedSustainFrames *int     `json:"speed_sustain_frames,omitempty"`
	MinSpeedKMH        *float64 `json:"min_speed_kmh,omitempty"`
	MaxSpeedKMH        *float64 `json:"max_speed_kmh,omitempty"`

	// Helmet rule params
	HelmetWindow       *int     `json:"helmet_window,omitempty"`
	HeadRegionFraction *float64 `json:"head_region_fraction,omitempty"`
	ContainmentRatio   *float64 `json:"containment_ratio,omitempty"`
	AdjacencyGapPx     *float64 `json:"adjacency_gap_px,omitempty"`

	// Plate resolution params
	PlateStableFrames   *int     `json:"plate_stable_frames,omitempty"`
	PlateBindDistancePx *float64 `json:"plate_bind_distance_px,omitempty"`
	OCRConfidence       *float64 `json:"ocr_confidence,omitempty"`
	PlatePattern        *string  `json:"plate_pattern,omitempty"`

	// Pipeline params
	FrameRate        *float64 `json:"frame_rate,omitempty"`
	EvidenceMarginPx *float64 `json:"evidence_margin_px,omitempty"`
	QueueDepth       *int     `json:"queue_depth,omitempty"`

	// Rollup params
	RollupInterval *string `json:"rollup_interval,omitempty"` // duration string like "1h"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its stock value. The getter defaults and this function must agree; the
// defaults JSON file is generated from it.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		VehicleConfidence:      ptrFloat64(0.5),
		PersonConfidence:       ptrFloat64(0.5),
		HelmetConfidence:       ptrFloat64(0.5),
		TrafficLightConfidence: ptrFloat64(0.3),
		PlateConfidence:        ptrFloat64(0.3),

		MaxTracks:           ptrInt(100),
		MaxMisses:           ptrInt(5),
		HitsToConfirm:       ptrInt(2),
		RetentionFrames:     ptrInt64(10),
		AffinityFloorIoU:    ptrFloat64(0.1),
		MaxCentroidDistance: ptrFloat64(100),
		UsePrediction:       ptrBool(true),

		LineTolerancePx:   ptrFloat64(15),
		RedConfidence:     ptrFloat64(0.3),
		RedLagFrames:      ptrInt64(2),
		DerivationWindow:  ptrInt64(50),
		StopDisplacement:  ptrFloat64(2),
		MinStoppedSamples: ptrInt(5),
		FallbackFraction:  ptrFloat64(0.75),
		FallbackInsetPx:   ptrFloat64(50),

		PixelToMeterRatio:  ptrFloat64(0.05),
		SpeedLimitKMH:      ptrFloat64(40),
		SpeedWindow:        ptrInt(5),
		SpeedSustainFrames: ptrInt(3),
		MinSpeedKMH:        ptrFloat64(5),
		MaxSpeedKMH:        ptrFloat64(200),

		HelmetWindow:       ptrInt(5),
		HeadRegionFraction: ptrFloat64(0.3),
		ContainmentRatio:   ptrFloat64(0.6),
		AdjacencyGapPx:     ptrFloat64(20),

		PlateStableFrames:   ptrInt(3),
		PlateBindDistancePx: ptrFloat64(100),
		OCRConfidence:       ptrFloat64(0.3),
		PlatePattern:        ptrString(`^[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{4}$`),

		FrameRate:        ptrFloat64(25),
		EvidenceMarginPx: ptrFloat64(20),
		QueueDepth:       ptrInt(64),

		RollupInterval: ptrString("1h"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from deeper internal packages
		"../../../../" + DefaultConfigPath, // deeper still
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// All confidence gates share the same [0,1] range.
	gates := []struct {
		name string
		v    *float64
	}{
		{"vehicle_confidence", c.VehicleConfidence},
		{"person_confidence", c.PersonConfidence},
		{"helmet_confidence", c.HelmetConfidence},
		{"traffic_light_confidence", c.TrafficLightConfidence},
		{"plate_confidence", c.PlateConfidence},
		{"red_confidence", c.RedConfidence},
		{"ocr_confidence", c.OCRConfidence},
	}
	for _, g := range gates {
		if g.v != nil && (*g.v < 0 || *g.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", g.name, *g.v)
		}
	}

	if c.HeadRegionFraction != nil {
		if *c.HeadRegionFraction <= 0 || *c.HeadRegionFraction > 1 {
			return fmt.Errorf("head_region_fraction must be in (0, 1], got %f", *c.HeadRegionFraction)
		}
	}

	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be at least 1, got %d", *c.MaxTracks)
	}
	if c.QueueDepth != nil && *c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", *c.QueueDepth)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}

	// Validate PlatePattern compiles if set
	if c.PlatePattern != nil && *c.PlatePattern != "" {
		if _, err := regexp.Compile(*c.PlatePattern); err != nil {
			return fmt.Errorf("invalid plate_pattern %q: %w", *c.PlatePattern, err)
		}
	}

	// Validate RollupInterval can be parsed if set
	if c.RollupInterval != nil && *c.RollupInterval != "" {
		if _, err := time.ParseDuration(*c.RollupInterval); err != nil {
			return fmt.Errorf("invalid rollup_interval '%s': %w", *c.RollupInterval, err)
		}
	}

	return nil
}

// GetRollupInterval parses and returns the RollupInterval as a time.Duration.
func (c *TuningConfig) GetRollupInterval() time.Duration {
	if c.RollupInterval == nil || *c.RollupInterval == "" {
		return time.Hour // default
	}
	d, err := time.ParseDuration(*c.RollupInterval)
	if err != nil {
		return time.Hour // default on parse error
	}
	return d
}

// GetVehicleConfidence returns the vehicle_confidence value or the default.
func (c *TuningConfig) GetVehicleConfidence() float64 {
	if c.VehicleConfidence == nil {
		return 0.5
	}
	return *c.VehicleConfidence
}

// GetPersonConfidence returns the person_confidence value or the default.
func (c *TuningConfig) GetPersonConfidence() float64 {
	if c.PersonConfidence == nil {
		return 0.5
	}
	return *c.PersonConfidence
}

// GetHelmetConfidence returns the helmet_confidence value or the default.
func (c *TuningConfig) GetHelmetConfidence() float64 {
	if c.HelmetConfidence == nil {
		return 0.5
	}
	return *c.HelmetConfidence
}

// GetTrafficLightConfidence returns the traffic_light_confidence value or the default.
func (c *TuningConfig) GetTrafficLightConfidence() float64 {
	if c.TrafficLightConfidence == nil {
		return 0.3
	}
	return *c.TrafficLightConfidence
}

// GetPlateConfidence returns the plate_confidence value or the default.
func (c *TuningConfig) GetPlateConfidence() float64 {
	if c.PlateConfidence == nil {
		return 0.3
	}
	return *c.PlateConfidence
}

// GetMaxTracks returns the max_tracks value or the default.
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 100
	}
	return *c.MaxTracks
}

// GetMaxMisses returns the max_misses value or the default.
func (c *TuningConfig) GetMaxMisses() int {
	if c.MaxMisses == nil {
		return 5
	}
	return *c.MaxMisses
}

// GetHitsToConfirm returns the hits_to_confirm value or the default.
func (c *TuningConfig) GetHitsToConfirm() int {
	if c.HitsToConfirm == nil {
		return 2
	}
	return *c.HitsToConfirm
}

// GetRetentionFrames returns the retention_frames value or the default.
func (c *TuningConfig) GetRetentionFrames() int64 {
	if c.RetentionFrames == nil {
		return 10
	}
	return *c.RetentionFrames
}

// GetAffinityFloorIoU returns the affinity_floor_iou value or the default.
func (c *TuningConfig) GetAffinityFloorIoU() float64 {
	if c.AffinityFloorIoU == nil {
		return 0.1
	}
	return *c.AffinityFloorIoU
}

// GetMaxCentroidDistance returns the max_centroid_distance value or the default.
func (c *TuningConfig) GetMaxCentroidDistance() float64 {
	if c.MaxCentroidDistance == nil {
		return 100
	}
	return *c.MaxCentroidDistance
}

// GetUsePrediction returns the use_prediction value or the default.
func (c *TuningConfig) GetUsePrediction() bool {
	if c.UsePrediction == nil {
		return true
	}
	return *c.UsePrediction
}

// GetLineTolerancePx returns the line_tolerance_px value or the default.
func (c *TuningConfig) GetLineTolerancePx() float64 {
	if c.LineTolerancePx == nil {
		return 15
	}
	return *c.LineTolerancePx
}

// GetRedConfidence returns the red_confidence value or the default.
func (c *TuningConfig) GetRedConfidence() float64 {
	if c.RedConfidence == nil {
		return 0.3
	}
	return *c.RedConfidence
}

// GetRedLagFrames returns the red_lag_frames value or the default.
func (c *TuningConfig) GetRedLagFrames() int64 {
	if c.RedLagFrames == nil {
		return 2
	}
	return *c.RedLagFrames
}

// GetDerivationWindow returns the derivation_window value or the default.
func (c *TuningConfig) GetDerivationWindow() int64 {
	if c.DerivationWindow == nil {
		return 50
	}
	return *c.DerivationWindow
}

// GetStopDisplacement returns the stop_displacement value or the default.
func (c *TuningConfig) GetStopDisplacement() float64 {
	if c.StopDisplacement == nil {
		return 2
	}
	return *c.StopDisplacement
}

// GetMinStoppedSamples returns the min_stopped_samples value or the default.
func (c *TuningConfig) GetMinStoppedSamples() int {
	if c.MinStoppedSamples == nil {
		return 5
	}
	return *c.MinStoppedSamples
}

// GetFallbackFraction returns the fallback_fraction value or the default.
func (c *TuningConfig) GetFallbackFraction() float64 {
	if c.FallbackFraction == nil {
		return 0.75
	}
	return *c.FallbackFraction
}

// GetFallbackInsetPx returns the fallback_inset_px value or the default.
func (c *TuningConfig) GetFallbackInsetPx() float64 {
	if c.FallbackInsetPx == nil {
		return 50
	}
	return *c.FallbackInsetPx
}

// GetPixelToMeterRatio returns the pixel_to_meter_ratio value or the default.
func (c *TuningConfig) GetPixelToMeterRatio() float64 {
	if c.PixelToMeterRatio == nil {
		return 0.05
	}
	return *c.PixelToMeterRatio
}

// GetSpeedLimitKMH returns the speed_limit_kmh value or the default.
func (c *TuningConfig) GetSpeedLimitKMH() float64 {
	if c.SpeedLimitKMH == nil {
		return 40
	}
	return *c.SpeedLimitKMH
}

// GetSpeedWindow returns the speed_window value or the default.
func (c *TuningConfig) GetSpeedWindow() int {
	if c.SpeedWindow == nil {
		return 5
	}
	return *c.SpeedWindow
}

// GetSpeedSustainFrames returns the speed_sustain_frames value or the default.
func (c *TuningConfig) GetSpeedSustainFrames() int {
	if c.SpeedSustainFrames == nil {
		return 3
	}
	return *c.SpeedSustainFrames
}

// GetMinSpeedKMH returns the min_speed_kmh value or the default.
func (c *TuningConfig) GetMinSpeedKMH() float64 {
	if c.MinSpeedKMH == nil {
		return 5
	}
	return *c.MinSpeedKMH
}

// GetMaxSpeedKMH returns the max_speed_kmh value or the default.
func (c *TuningConfig) GetMaxSpeedKMH() float64 {
	if c.MaxSpeedKMH == nil {
		return 200
	}
	return *c.MaxSpeedKMH
}

// GetHelmetWindow returns the helmet_window value or the default.
func (c *TuningConfig) GetHelmetWindow() int {
	if c.HelmetWindow == nil {
		return 5
	}
	return *c.HelmetWindow
}

// GetHeadRegionFraction returns the head_region_fraction value or the default.
func (c *TuningConfig) GetHeadRegionFraction() float64 {
	if c.HeadRegionFraction == nil {
		return 0.3
	}
	return *c.HeadRegionFraction
}

// GetContainmentRatio returns the containment_ratio value or the default.
func (c *TuningConfig) GetContainmentRatio() float64 {
	if c.ContainmentRatio == nil {
		return 0.6
	}
	return *c.ContainmentRatio
}

// GetAdjacencyGapPx returns the adjacency_gap_px value or the default.
func (c *TuningConfig) GetAdjacencyGapPx() float64 {
	if c.AdjacencyGapPx == nil {
		return 20
	}
	return *c.AdjacencyGapPx
}

// GetPlateStableFrames returns the plate_stable_frames value or the default.
func (c *TuningConfig) GetPlateStableFrames() int {
	if c.PlateStableFrames == nil {
		return 3
	}
	return *c.PlateStableFrames
}

// GetPlateBindDistancePx returns the plate_bind_distance_px value or the default.
func (c *TuningConfig) GetPlateBindDistancePx() float64 {
	if c.PlateBindDistancePx == nil {
		return 100
	}
	return *c.PlateBindDistancePx
}

// GetOCRConfidence returns the ocr_confidence value or the default.
func (c *TuningConfig) GetOCRConfidence() float64 {
	if c.OCRConfidence == nil {
		return 0.3
	}
	return *c.OCRConfidence
}

// GetPlatePattern returns the plate_pattern value or the default.
func (c *TuningConfig) GetPlatePattern() string {
	if c.PlatePattern == nil || *c.PlatePattern == "" {
		return `^[A-Z]{2}[0-9]{2}[A-Z]{1,2}[0-9]{4}$`
	}
	return *c.PlatePattern
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 25
	}
	return *c.FrameRate
}

// GetEvidenceMarginPx returns the evidence_margin_px value or the default.
func (c *TuningConfig) GetEvidenceMarginPx() float64 {
	if c.EvidenceMarginPx == nil {
		return 20
	}
	return *c.EvidenceMarginPx
}

// GetQueueDepth returns the queue_depth value or the default.
func (c *TuningConfig) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return 64
	}
	return *c.QueueDepth
}
