package domain

import (
	"encoding/json"
	"time"
)

// Field is a monitored plot of land bounded by a polygon.
type Field struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Geometry    json.RawMessage `json:"geometry"`
	Size        float64         `json:"size"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FieldDetail is a field augmented with map, weather and disease context.
type FieldDetail struct {
	Field
	MainCoordinate   *GeoPoint       `json:"main_coordinate"`
	MapTileURL       *string         `json:"map_tile_url"`
	DiseaseLocations []Sighting      `json:"disease_locations"`
	Weather          json.RawMessage `json:"weather"`
	Forecast         json.RawMessage `json:"forecast"`
}

// AssetStatus tracks the second phase of a reading write.
type AssetStatus string

const (
	AssetNone         AssetStatus = "none"
	AssetPending      AssetStatus = "pending"
	AssetAttached     AssetStatus = "attached"
	AssetAttachFailed AssetStatus = "attach_failed"
	// AssetLost marks a failed attach whose image bytes are no longer held.
	AssetLost AssetStatus = "lost"
)

// Defaults applied to readings without a usable diagnosis.
const (
	DefaultCropName = "Unknown"
	DefaultSolution = "No solution required"
)

// Reading is a single sensor/image observation taken in a field.
type Reading struct {
	ID             int64       `json:"id"`
	FieldID        int64       `json:"main_field"`
	Temperature    *float64    `json:"temperature"`
	Humidity       *float64    `json:"humidity"`
	SoilMoisture   *float64    `json:"soil_moisture"`
	Location       *LatLng     `json:"location"`
	AssetID        string      `json:"-"`
	AssetURL       string      `json:"img,omitempty"`
	AssetStatus    AssetStatus `json:"asset_status"`
	CropName       string      `json:"crop_name"`
	Description    string      `json:"description"`
	IsDisease      bool        `json:"is_disease"`
	IsNotCrop      bool        `json:"is_not_crop"`
	Solution       string      `json:"solution"`
	DiagnosisError string      `json:"diagnosis_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ApplyDiagnosis copies classifier output onto the reading.
func (r *Reading) ApplyDiagnosis(d Diagnosis) {
	r.CropName = d.CropName
	r.Description = d.Description
	r.IsDisease = d.IsDisease
	r.IsNotCrop = d.IsNotCrop
	r.Solution = d.Solution
	r.DiagnosisError = d.Error
}

// Diagnosis is the structured result of classifying a crop image.
type Diagnosis struct {
	CropName    string `json:"crop_name"`
	Description string `json:"description"`
	IsDisease   bool   `json:"is_disease"`
	Solution    string `json:"solution"`
	IsNotCrop   bool   `json:"is_not_crop"`
	Error       string `json:"error,omitempty"`
}

// Sighting is a deduplicated disease-positive reading shown on a field map.
type Sighting struct {
	Location     *LatLng   `json:"location"`
	Temperature  *float64  `json:"temperature"`
	Humidity     *float64  `json:"humidity"`
	SoilMoisture *float64  `json:"soil_moisture"`
	Img          string    `json:"img,omitempty"`
	Description  string    `json:"description"`
	CropName     string    `json:"crop_name"`
	Solution     string    `json:"solution"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReadingEvent is published after a reading is stored.
type ReadingEvent struct {
	ReadingID   int64       `json:"reading_id"`
	FieldID     int64       `json:"field_id"`
	CropName    string      `json:"crop_name"`
	IsDisease   bool        `json:"is_disease"`
	Location    *LatLng     `json:"location,omitempty"`
	AssetStatus AssetStatus `json:"asset_status"`
	Reason      string      `json:"reason,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
