package main

import (
	"fmt"
	"math"
	"strings"
)

const earthRadiusKm = 6371.0

// locatorPair describes one pair of characters in a Maidenhead locator: the
// allowed range and the size of one step in degrees (longitude, latitude).
type locatorPair struct {
	lo, hi  byte
	lonStep float64
	latStep float64
}

var locatorPairs = [...]locatorPair{
	{'A', 'R', 20, 10},
	{'0', '9', 2, 1},
	{'A', 'X', 2.0 / 24, 1.0 / 24},
	{'0', '9', 2.0 / 240, 1.0 / 240},
}

// MaidenheadToLatLon converts a 4, 6 or 8 character locator to the
// latitude and longitude of the centre of its square.
func MaidenheadToLatLon(locator string) (lat, lon float64, err error) {
	locator = strings.ToUpper(strings.TrimSpace(locator))
	if n := len(locator); n != 4 && n != 6 && n != 8 {
		return 0, 0, fmt.Errorf("invalid Maidenhead locator length: %d (must be 4, 6, or 8)", n)
	}

	var p locatorPair
	for i := 0; i < len(locator); i += 2 {
		p = locatorPairs[i/2]
		a, b := locator[i], locator[i+1]
		if a < p.lo || a > p.hi || b < p.lo || b > p.hi {
			return 0, 0, fmt.Errorf("invalid locator %q: characters %d-%d must be %c-%c", locator, i+1, i+2, p.lo, p.hi)
		}
		lon += float64(a-p.lo) * p.lonStep
		lat += float64(b-p.lo) * p.latStep
	}

	// centre of the smallest square
	lon += p.lonStep / 2
	lat += p.latStep / 2
	return lat - 90, lon - 180, nil
}

// CalculateDistanceAndBearing returns the great circle distance in km and
// the initial bearing in degrees between two points.
func CalculateDistanceAndBearing(lat1, lon1, lat2, lon2 float64) (distanceKm, bearingDeg float64) {
	toRad := math.Pi / 180
	phi1, phi2 := lat1*toRad, lat2*toRad
	dPhi := (lat2 - lat1) * toRad
	dLambda := (lon2 - lon1) * toRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	distanceKm = earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	bearingDeg = math.Mod(math.Atan2(y, x)/toRad+360, 360)
	return distanceKm, bearingDeg
}

// CalculateDistanceAndBearingFromLocators calculates distance and bearing between two locators
func CalculateDistanceAndBearingFromLocators(from, to string) (distanceKm, bearingDeg float64, err error) {
	lat1, lon1, err := MaidenheadToLatLon(from)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid locator %q: %w", from, err)
	}
	lat2, lon2, err := MaidenheadToLatLon(to)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid locator %q: %w", to, err)
	}
	distanceKm, bearingDeg = CalculateDistanceAndBearing(lat1, lon1, lat2, lon2)
	return distanceKm, bearingDeg, nil
}

// IsValidMaidenheadLocator checks if a string is a valid Maidenhead locator
func IsValidMaidenheadLocator(locator string) bool {
	_, _, err := MaidenheadToLatLon(locator)
	return err == nil
}
