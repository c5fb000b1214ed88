package units

import (
	"fmt"
	"strings"
	"time"
)

// CommonTimezones is a curated list of timezones offered by the dashboard
// timezone picker. Deployments in other regions can still pass any tz
// database name; IsTimezoneValid checks against the real database.
var CommonTimezones = []string{
	"UTC",                 // +00:00
	"Europe/London",       // +00:00/+01:00
	"Europe/Berlin",       // +01:00/+02:00
	"Africa/Nairobi",      // +03:00
	"Asia/Dubai",          // +04:00
	"Asia/Karachi",        // +05:00
	"Asia/Kolkata",        // +05:30
	"Asia/Dhaka",          // +06:00
	"Asia/Bangkok",        // +07:00
	"Asia/Singapore",      // +08:00
	"Australia/Sydney",    // +10:00/+11:00
	"America/New_York",    // -05:00/-04:00
	"America/Chicago",     // -06:00/-05:00
	"America/Los_Angeles", // -08:00/-07:00
}

// IsTimezoneValid checks if the given timezone is valid by attempting to load
// it from the tz database. This validates against the actual system database
// rather than the curated list.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// IsCommonTimezone checks if the given timezone is in the curated list.
func IsCommonTimezone(tz string) bool {
	for _, commonTz := range CommonTimezones {
		if tz == commonTz {
			return true
		}
	}
	return false
}

// GetValidTimezonesString returns a comma-separated string of common timezones for error messages
func GetValidTimezonesString() string {
	return strings.Join(CommonTimezones, ", ")
}

// ConvertTime converts a UTC time to the specified timezone.
// The database stores all times in UTC; this converts them for display.
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime, nil // No conversion needed
	}

	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}

	return utcTime.In(loc), nil
}
