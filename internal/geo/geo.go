package geo

import (
	"fmt"
	"math"
)

// earthRadiusKm is the mean Earth radius used by the Haversine formula.
const earthRadiusKm = 6371.0

// warningBuffer widens the geofence radius to tolerate GPS inaccuracy.
// Fixed at 20%, not configurable per class.
const warningBuffer = 1.2

// Location is a captured GPS fix. Immutable once produced.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"` // meters
}

// Geofence is the allowed check-in circle for a class.
type Geofence struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Status classifies a position relative to a geofence.
type Status string

const (
	StatusInside  Status = "inside"
	StatusWarning Status = "warning"
	StatusOutside Status = "outside"
)

// Distance returns the great-circle distance between two points in
// kilometers. Coordinates are decimal degrees and are not validated;
// out-of-range values produce meaningless but defined results.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Classify compares a position against a class geofence. A nil fence means
// the class has no geofence configured and every position is accepted.
func Classify(lat, lon float64, fence *Geofence) Status {
	if fence == nil {
		return StatusInside
	}
	meters := Distance(lat, lon, fence.Latitude, fence.Longitude) * 1000
	switch {
	case meters <= fence.RadiusMeters:
		return StatusInside
	case meters <= fence.RadiusMeters*warningBuffer:
		return StatusWarning
	default:
		return StatusOutside
	}
}

// FormatDistance renders a distance in km as "350m" or "1.24km".
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.2fkm", km)
}

// FormatLocation renders coordinates for display.
func FormatLocation(loc Location) string {
	return fmt.Sprintf("%.6f, %.6f", loc.Latitude, loc.Longitude)
}

func toRad(deg float64) float64 {
	return deg * (math.Pi / 180)
}
