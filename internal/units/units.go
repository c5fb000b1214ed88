// Package units provides shared constants and validation for speed units
// and display timezones.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from kilometres per hour to the target units.
// The database stores estimated speeds in km/h.
func ConvertSpeed(speedKMH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedKMH / 3.6
	case MPH:
		return speedKMH * 0.62137119223733 // km/h to mph
	case KMPH, KPH:
		return speedKMH // no conversion needed
	default:
		return speedKMH // default to km/h if unknown unit
	}
}
