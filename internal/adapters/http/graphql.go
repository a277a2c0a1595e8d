package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	latLngType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LatLng",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	sightingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Sighting",
		Fields: graphql.Fields{
			"location":      &graphql.Field{Type: latLngType},
			"temperature":   &graphql.Field{Type: graphql.Float},
			"humidity":      &graphql.Field{Type: graphql.Float},
			"soil_moisture": &graphql.Field{Type: graphql.Float},
			"img":           &graphql.Field{Type: graphql.String},
			"description":   &graphql.Field{Type: graphql.String},
			"crop_name":     &graphql.Field{Type: graphql.String},
			"solution":      &graphql.Field{Type: graphql.String},
			"created_at":    &graphql.Field{Type: graphql.String},
		},
	})

	fieldFields := func() graphql.Fields {
		return graphql.Fields{
			"id":          &graphql.Field{Type: graphql.ID},
			"name":        &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"geometry":    &graphql.Field{Type: graphql.String, Description: "GeoJSON as a string"},
			"size":        &graphql.Field{Type: graphql.Float},
			"created_at":  &graphql.Field{Type: graphql.String},
			"updated_at":  &graphql.Field{Type: graphql.String},
		}
	}

	fieldType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Field",
		Fields: fieldFields(),
	})

	detailFields := fieldFields()
	detailFields["main_coordinate"] = &graphql.Field{Type: geoPointType}
	detailFields["map_tile_url"] = &graphql.Field{Type: graphql.String}
	detailFields["disease_locations"] = &graphql.Field{Type: graphql.NewList(sightingType)}
	detailFields["weather"] = &graphql.Field{Type: graphql.String, Description: "Weather payload as a JSON string"}
	detailFields["forecast"] = &graphql.Field{Type: graphql.String, Description: "Forecast payload as a JSON string"}
	fieldDetailType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "FieldDetail",
		Fields: detailFields,
	})

	readingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Reading",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.ID},
			"main_field":      &graphql.Field{Type: graphql.ID},
			"temperature":     &graphql.Field{Type: graphql.Float},
			"humidity":        &graphql.Field{Type: graphql.Float},
			"soil_moisture":   &graphql.Field{Type: graphql.Float},
			"location":        &graphql.Field{Type: latLngType},
			"img":             &graphql.Field{Type: graphql.String},
			"asset_status":    &graphql.Field{Type: graphql.String},
			"crop_name":       &graphql.Field{Type: graphql.String},
			"description":     &graphql.Field{Type: graphql.String},
			"is_disease":      &graphql.Field{Type: graphql.Boolean},
			"is_not_crop":     &graphql.Field{Type: graphql.Boolean},
			"solution":        &graphql.Field{Type: graphql.String},
			"diagnosis_error": &graphql.Field{Type: graphql.String},
			"created_at":      &graphql.Field{Type: graphql.String},
		},
	})

	tileType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Tile",
		Fields: graphql.Fields{
			"x":    &graphql.Field{Type: graphql.Int},
			"y":    &graphql.Field{Type: graphql.Int},
			"zoom": &graphql.Field{Type: graphql.Int},
			"url":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"fields": &graphql.Field{
				Type:        graphql.NewList(fieldType),
				Description: "List fields, optionally filtered by name",
				Args: graphql.FieldConfigArgument{
					"search": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageSize},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					fields, _, err := deps.Fields.List(p.Context, p.Args["search"].(string), p.Args["offset"].(int), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(fields))
					for i := range fields {
						out = append(out, fieldMap(&fields[i]))
					}
					return out, nil
				},
			},
			"field": &graphql.Field{
				Type:        fieldDetailType,
				Description: "Field detail with sightings, tile and weather",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := idArg(p.Args["id"])
					if err != nil {
						return nil, err
					}
					d, err := deps.Fields.Detail(p.Context, id)
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return detailMap(d), nil
				},
			},
			"sightings": &graphql.Field{
				Type:        graphql.NewList(sightingType),
				Description: "Distinct disease sightings of a field",
				Args: graphql.FieldConfigArgument{
					"field": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, err := idArg(p.Args["field"])
					if err != nil {
						return nil, err
					}
					sightings, err := deps.Fields.Sightings(p.Context, id)
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return sightingMaps(sightings), nil
				},
			},
			"readings": &graphql.Field{
				Type:        graphql.NewList(readingType),
				Description: "Readings, most recent first",
				Args: graphql.FieldConfigArgument{
					"field":   &graphql.ArgumentConfig{Type: graphql.ID},
					"disease": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"offset":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageSize},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					filter := ports.ReadingFilter{
						DiseaseOnly: p.Args["disease"].(bool),
						Offset:      max(p.Args["offset"].(int), 0),
						Limit:       p.Args["limit"].(int),
					}
					if filter.Limit <= 0 || filter.Limit > maxPageSize {
						filter.Limit = defaultPageSize
					}
					if raw, ok := p.Args["field"]; ok && raw != nil {
						id, err := idArg(raw)
						if err != nil {
							return nil, err
						}
						filter.FieldID = id
					}
					readings, _, err := deps.Readings.List(p.Context, filter)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(readings))
					for i := range readings {
						out = append(out, readingMap(&readings[i]))
					}
					return out, nil
				},
			},
			"tile": &graphql.Field{
				Type:        tileType,
				Description: "Map tile covering a coordinate",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					t, url, err := deps.Fields.Tile(p.Args["lat"].(float64), p.Args["lon"].(float64), p.Args["zoom"].(int))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{"x": t.X, "y": t.Y, "zoom": t.Zoom, "url": url}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

func idArg(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("id must be a string")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func fieldMap(f *domain.Field) map[string]interface{} {
	return map[string]interface{}{
		"id":          strconv.FormatInt(f.ID, 10),
		"name":        f.Name,
		"description": f.Description,
		"geometry":    string(f.Geometry),
		"size":        f.Size,
		"created_at":  f.CreatedAt.Format(time.RFC3339),
		"updated_at":  f.UpdatedAt.Format(time.RFC3339),
	}
}

func detailMap(d *domain.FieldDetail) map[string]interface{} {
	m := fieldMap(&d.Field)
	if d.MainCoordinate != nil {
		m["main_coordinate"] = map[string]interface{}{"lat": d.MainCoordinate.Lat, "lon": d.MainCoordinate.Lon}
	}
	if d.MapTileURL != nil {
		m["map_tile_url"] = *d.MapTileURL
	}
	m["disease_locations"] = sightingMaps(d.DiseaseLocations)
	if len(d.Weather) > 0 {
		m["weather"] = string(d.Weather)
	}
	if len(d.Forecast) > 0 {
		m["forecast"] = string(d.Forecast)
	}
	return m
}

func latLngMap(l *domain.LatLng) interface{} {
	if l == nil {
		return nil
	}
	return map[string]interface{}{"lat": l.Lat, "lng": l.Lng}
}

func sightingMaps(sightings []domain.Sighting) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sightings))
	for _, s := range sightings {
		out = append(out, map[string]interface{}{
			"location":      latLngMap(s.Location),
			"temperature":   s.Temperature,
			"humidity":      s.Humidity,
			"soil_moisture": s.SoilMoisture,
			"img":           s.Img,
			"description":   s.Description,
			"crop_name":     s.CropName,
			"solution":      s.Solution,
			"created_at":    s.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func readingMap(r *domain.Reading) map[string]interface{} {
	return map[string]interface{}{
		"id":              strconv.FormatInt(r.ID, 10),
		"main_field":      strconv.FormatInt(r.FieldID, 10),
		"temperature":     r.Temperature,
		"humidity":        r.Humidity,
		"soil_moisture":   r.SoilMoisture,
		"location":        latLngMap(r.Location),
		"img":             r.AssetURL,
		"asset_status":    string(r.AssetStatus),
		"crop_name":       r.CropName,
		"description":     r.Description,
		"is_disease":      r.IsDisease,
		"is_not_crop":     r.IsNotCrop,
		"solution":        r.Solution,
		"diagnosis_error": r.DiagnosisError,
		"created_at":      r.CreatedAt.Format(time.RFC3339),
	}
}
