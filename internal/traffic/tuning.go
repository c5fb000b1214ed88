package traffic

import (
	"github.com/banshee-data/violation.report/internal/config"
)

// PipelineConfigFromTuning builds a PipelineConfig for one stream from a
// loaded TuningConfig. Use this in production code where the TuningConfig is
// already loaded. Sinks and the OCR hook stay nil; callers wire those
// separately.
func PipelineConfigFromTuning(streamID string, cfg *config.TuningConfig) PipelineConfig {
	frameRate := cfg.GetFrameRate()
	return PipelineConfig{
		StreamID:         streamID,
		FrameRate:        frameRate,
		EvidenceMarginPx: cfg.GetEvidenceMarginPx(),
		Intake: IntakeConfig{
			VehicleConfidence:      cfg.GetVehicleConfidence(),
			PersonConfidence:       cfg.GetPersonConfidence(),
			HelmetConfidence:       cfg.GetHelmetConfidence(),
			TrafficLightConfidence: cfg.GetTrafficLightConfidence(),
			PlateConfidence:        cfg.GetPlateConfidence(),
		},
		Tracker: TrackerConfig{
			MaxTracks:           cfg.GetMaxTracks(),
			MaxMisses:           cfg.GetMaxMisses(),
			HitsToConfirm:       cfg.GetHitsToConfirm(),
			RetentionFrames:     cfg.GetRetentionFrames(),
			AffinityFloorIoU:    cfg.GetAffinityFloorIoU(),
			MaxCentroidDistance: cfg.GetMaxCentroidDistance(),
			UsePrediction:       cfg.GetUsePrediction(),
			FrameIntervalSec:    1 / frameRate,
		},
		Line: LineEngineConfig{
			TolerancePx:       cfg.GetLineTolerancePx(),
			RedConfidence:     cfg.GetRedConfidence(),
			RedLagFrames:      cfg.GetRedLagFrames(),
			DerivationWindow:  cfg.GetDerivationWindow(),
			StopDisplacement:  cfg.GetStopDisplacement(),
			MinStoppedSamples: cfg.GetMinStoppedSamples(),
			FallbackFraction:  cfg.GetFallbackFraction(),
			FallbackInsetPx:   cfg.GetFallbackInsetPx(),
		},
		Speed: SpeedConfig{
			PixelToMeterRatio:  cfg.GetPixelToMeterRatio(),
			FrameRate:          frameRate,
			LimitKMH:           cfg.GetSpeedLimitKMH(),
			WindowObservations: cfg.GetSpeedWindow(),
			SustainFrames:      cfg.GetSpeedSustainFrames(),
			MinSpeedKMH:        cfg.GetMinSpeedKMH(),
			MaxSpeedKMH:        cfg.GetMaxSpeedKMH(),
		},
		Helmet: HelmetConfig{
			ConfirmationWindow: cfg.GetHelmetWindow(),
			HeadRegionFraction: cfg.GetHeadRegionFraction(),
			ContainmentRatio:   cfg.GetContainmentRatio(),
			AdjacencyGapPx:     cfg.GetAdjacencyGapPx(),
		},
		Plate: PlateConfig{
			StableFrames:      cfg.GetPlateStableFrames(),
			MaxBindDistancePx: cfg.GetPlateBindDistancePx(),
			OCRConfidence:     cfg.GetOCRConfidence(),
			Pattern:           cfg.GetPlatePattern(),
		},
	}
}

// ManagerConfigFromTuning builds a ManagerConfig from a loaded TuningConfig.
// The session sink stays nil; callers wire it separately.
func ManagerConfigFromTuning(cfg *config.TuningConfig) ManagerConfig {
	return ManagerConfig{
		QueueDepth: cfg.GetQueueDepth(),
	}
}
