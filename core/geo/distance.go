// Package geo provides the great-circle helpers used for duplicate detection
// and rescuer eligibility.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate expressed in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the latitude/longitude ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the haversine distance between a and b in kilometers.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// BoundingBox returns the min/max coordinates of a box that fully contains the
// circle of radiusKm around center. SQL backends use it as a coarse prefilter
// before applying Distance. Latitudes are clamped to the poles; when the
// circle reaches a pole or crosses the antimeridian the box spans every
// longitude.
func BoundingBox(center Point, radiusKm float64) (lo, hi Point) {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	lo = Point{Lat: center.Lat - dLat, Lng: -180}
	hi = Point{Lat: center.Lat + dLat, Lng: 180}
	if lo.Lat <= -90 || hi.Lat >= 90 {
		lo.Lat, hi.Lat = math.Max(lo.Lat, -90), math.Min(hi.Lat, 90)
		return lo, hi
	}
	dLng := dLat / math.Cos(toRad(center.Lat))
	if center.Lng-dLng < -180 || center.Lng+dLng > 180 {
		return lo, hi
	}
	lo.Lng, hi.Lng = center.Lng-dLng, center.Lng+dLng
	return lo, hi
}

// Offset moves p by the given north/east displacement in kilometers. It is
// an equirectangular approximation, accurate for the short distances used in
// tests and simulations.
func Offset(p Point, northKm, eastKm float64) Point {
	dLat := northKm / EarthRadiusKm * 180 / math.Pi
	dLng := eastKm / (EarthRadiusKm * math.Cos(toRad(p.Lat))) * 180 / math.Pi
	return Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
