package domain

// Coordinate is a geographic position in WGS 84 degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// GeoLineString is an ordered sequence of coordinates.
type GeoLineString struct {
	Coordinates []Coordinate `json:"coordinates"`
}

// BoundingBox is a lon/lat rectangle. Shard boxes may overlap each other.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Valid reports whether the box has positive extent and sane latitudes.
func (b BoundingBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// Contains reports whether the coordinate lies inside the box. Edges count
// as inside, so adjacent shards both cover their shared border.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lon >= b.MinLon && c.Lon <= b.MaxLon &&
		c.Lat >= b.MinLat && c.Lat <= b.MaxLat
}

// Intersects reports whether the two boxes share any area or edge.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon &&
		b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat
}

// Intersection returns the overlapping region of two boxes.
// ok is false when the boxes do not touch.
func (b BoundingBox) Intersection(o BoundingBox) (BoundingBox, bool) {
	if !b.Intersects(o) {
		return BoundingBox{}, false
	}
	return BoundingBox{
		MinLon: max(b.MinLon, o.MinLon),
		MinLat: max(b.MinLat, o.MinLat),
		MaxLon: min(b.MaxLon, o.MaxLon),
		MaxLat: min(b.MaxLat, o.MaxLat),
	}, true
}

// Expand grows the box by deg degrees on every side.
func (b BoundingBox) Expand(deg float64) BoundingBox {
	return BoundingBox{
		MinLon: b.MinLon - deg,
		MinLat: b.MinLat - deg,
		MaxLon: b.MaxLon + deg,
		MaxLat: b.MaxLat + deg,
	}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{
		Lon: (b.MinLon + b.MaxLon) / 2,
		Lat: (b.MinLat + b.MaxLat) / 2,
	}
}

// Area returns the box area in square degrees. Used only for comparing
// shard boxes against each other, so no spherical correction is applied.
func (b BoundingBox) Area() float64 {
	return (b.MaxLon - b.MinLon) * (b.MaxLat - b.MinLat)
}
