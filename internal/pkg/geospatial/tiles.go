package geospatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

const (
	// MaxMercatorLat is the latitude bound of the Web Mercator projection.
	MaxMercatorLat = 85.05112878

	DefaultZoom        = 17
	MaxZoom            = 30
	DefaultTileURLTmpl = "https://mt1.google.com/vt/lyrs=y&x={x}&y={y}&z={z}"
)

// ErrInvalidZoom is returned for zoom levels outside [1, MaxZoom].
var ErrInvalidZoom = fmt.Errorf("zoom must be between 1 and %d", MaxZoom)

// ErrInvalidCoordinate is returned for NaN or infinite coordinates.
var ErrInvalidCoordinate = errors.New("lat and lon must be finite numbers")

// RepresentativeCoordinate returns the first vertex of the first ring of a
// polygon. Vertices are [lon, lat] pairs. The geometry may be a GeoJSON-like
// object with a "coordinates" member, a bare list of rings, or a bare ring.
// Missing, short or malformed input yields ok == false.
func RepresentativeCoordinate(geometry json.RawMessage) (domain.GeoPoint, bool) {
	var root any
	if err := json.Unmarshal(geometry, &root); err != nil {
		return domain.GeoPoint{}, false
	}
	if obj, ok := root.(map[string]any); ok {
		root = obj["coordinates"]
	}

	rings, ok := root.([]any)
	if !ok || len(rings) == 0 {
		return domain.GeoPoint{}, false
	}

	// [[lon,lat],...] and [[[lon,lat],...],...] both appear in stored fields.
	first := rings[0]
	if ring, ok := first.([]any); ok && len(ring) > 0 {
		if _, nested := ring[0].([]any); nested {
			first = ring[0]
		}
	}

	vertex, ok := first.([]any)
	if !ok || len(vertex) < 2 {
		return domain.GeoPoint{}, false
	}
	lon, ok1 := vertex[0].(float64)
	lat, ok2 := vertex[1].(float64)
	if !ok1 || !ok2 || math.IsNaN(lat) || math.IsNaN(lon) {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: lat, Lon: lon}, true
}

// TileIndex projects a coordinate onto the slippy-map grid at zoom.
func TileIndex(lat, lon float64, zoom int) (domain.Tile, error) {
	if zoom < 1 || zoom > MaxZoom {
		return domain.Tile{}, ErrInvalidZoom
	}
	if !finite(lat) || !finite(lon) {
		return domain.Tile{}, ErrInvalidCoordinate
	}

	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180

	n := float64(int64(1) << zoom)
	latRad := lat * math.Pi / 180

	x := math.Round((lon + 180) / 360 * n)
	y := math.Round((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n)

	return domain.Tile{X: clampTile(x, n), Y: clampTile(y, n), Zoom: zoom}, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// rounding can land on n at the east and south edges
func clampTile(v, n float64) int {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return int(n - 1)
	}
	return int(v)
}

// TileURLBuilder formats tile image URLs from a template holding {x}, {y}
// and {z} placeholders.
type TileURLBuilder struct {
	Template string
	Zoom     int
}

// NewTileURLBuilder returns a builder, falling back to the default template
// and zoom for empty values.
func NewTileURLBuilder(template string, zoom int) *TileURLBuilder {
	if template == "" {
		template = DefaultTileURLTmpl
	}
	if zoom == 0 {
		zoom = DefaultZoom
	}
	return &TileURLBuilder{Template: template, Zoom: zoom}
}

// Format fills the template for a tile.
func (b *TileURLBuilder) Format(t domain.Tile) string {
	return strings.NewReplacer(
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{z}", strconv.Itoa(t.Zoom),
	).Replace(b.Template)
}

// URL returns the tile image URL covering lat/lon at the given zoom.
func (b *TileURLBuilder) URL(lat, lon float64, zoom int) (string, error) {
	t, err := TileIndex(lat, lon, zoom)
	if err != nil {
		return "", err
	}
	return b.Format(t), nil
}

// RepresentativeURL returns the tile URL at the builder's zoom for the
// field's representative coordinate.
func (b *TileURLBuilder) RepresentativeURL(geometry json.RawMessage) (string, bool) {
	p, ok := RepresentativeCoordinate(geometry)
	if !ok {
		return "", false
	}
	u, err := b.URL(p.Lat, p.Lon, b.Zoom)
	if err != nil {
		return "", false
	}
	return u, true
}
