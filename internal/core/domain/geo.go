package domain

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LatLng is the point shape sent by field devices.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Tile is a slippy-map tile address.
type Tile struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Zoom int `json:"zoom"`
}
