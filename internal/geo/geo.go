package geo

import "fmt"

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

func (p Point) String() string { return fmt.Sprintf("(%.5f,%.5f)", p.Lat, p.Lng) }

// Lerp interpolates latitude and longitude independently at t.
// This is a straight line in lat/lng space, not a great-circle arc.
func Lerp(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}
