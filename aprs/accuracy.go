package aprs

import (
	"errors"
	"fmt"
	"math"
)

// ErrAmbiguity is returned by Accuracy for ambiguity values outside 0..4.
var ErrAmbiguity = errors.New("aprs: position ambiguity out of range")

const earthRadiusM = 6371000.0

// ambiguitySpanDeg maps a position ambiguity level to the longitude span the
// blanked digits cover: nothing, a tenth of a minute, a minute, ten minutes,
// a degree.
var ambiguitySpanDeg = [5]float64{0, 1.0 / 600, 1.0 / 60, 1.0 / 6, 1}

// Accuracy converts a position ambiguity level into an uncertainty radius in
// meters at the given coordinates. The radius is the great-circle distance
// between the reported point and the point one ambiguity span further east,
// so it shrinks with latitude the same way a blanked longitude digit does.
func Accuracy(lat, lon float64, ambiguity int) (int, error) {
	if ambiguity < 0 || ambiguity >= len(ambiguitySpanDeg) {
		return 0, fmt.Errorf("%w: %d", ErrAmbiguity, ambiguity)
	}
	d := haversine(lat, lon, lat, lon+ambiguitySpanDeg[ambiguity])
	return int(math.Round(d)), nil
}

// haversine returns the great-circle distance in meters between two points.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := degToRad(lat1)
	phi2 := degToRad(lat2)
	dPhi := degToRad(lat2 - lat1)
	dLambda := degToRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
