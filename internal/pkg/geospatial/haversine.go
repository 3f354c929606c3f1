package geospatial

import "math"

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// PointToSegmentMeters approximates the distance in meters from point p to the
// straight segment a-b, by projecting onto a local equirectangular plane.
// Accurate enough at shard-boundary scale.
func PointToSegmentMeters(pLat, pLon, aLat, aLon, bLat, bLon float64) float64 {
	midLat := (aLat + bLat) / 2
	kx := 111320.0 * math.Cos(toRad(midLat)) // meters per degree lon
	ky := 111320.0                           // meters per degree lat

	ax, ay := aLon*kx, aLat*ky
	bx, by := bLon*kx, bLat*ky
	px, py := pLon*kx, pLat*ky

	dx, dy := bx-ax, by-ay
	segLen2 := dx*dx + dy*dy
	if segLen2 == 0 {
		return math.Hypot(px-ax, py-ay)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / segLen2
	t = math.Max(0, math.Min(1, t))
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
