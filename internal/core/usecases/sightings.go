package usecases

import (
	"iter"
	"math"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// SightingPrecision is the number of decimal places two reading locations
// must share to count as the same sighting (about 11 cm).
const SightingPrecision = 6

type sightingKey struct {
	lat, lng float64
	known    bool
}

func keyFor(loc *domain.LatLng) sightingKey {
	if loc == nil {
		return sightingKey{}
	}
	scale := math.Pow10(SightingPrecision)
	return sightingKey{
		lat:   math.Round(loc.Lat*scale) / scale,
		lng:   math.Round(loc.Lng*scale) / scale,
		known: true,
	}
}

// DiseaseSightings yields one sighting per rounded location among the
// disease-positive readings, keeping the first reading seen for each
// location. Readings are expected most-recent-first. Readings without a
// location share a single key. resolveURL maps asset identifiers to URLs
// and may be nil.
//
// The sequence is lazy and can be ranged over any number of times.
func DiseaseSightings(readings []domain.Reading, resolveURL func(string) string) iter.Seq[domain.Sighting] {
	return func(yield func(domain.Sighting) bool) {
		seen := make(map[sightingKey]struct{})
		for i := range readings {
			r := &readings[i]
			if !r.IsDisease {
				continue
			}
			k := keyFor(r.Location)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}

			if !yield(toSighting(r, resolveURL)) {
				return
			}
		}
	}
}

func toSighting(r *domain.Reading, resolveURL func(string) string) domain.Sighting {
	s := domain.Sighting{
		Location:     r.Location,
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		SoilMoisture: r.SoilMoisture,
		Img:          r.AssetURL,
		Description:  r.Description,
		CropName:     r.CropName,
		Solution:     r.Solution,
		CreatedAt:    r.CreatedAt,
	}
	if s.Img == "" && r.AssetID != "" && resolveURL != nil {
		s.Img = resolveURL(r.AssetID)
	}
	return s
}
