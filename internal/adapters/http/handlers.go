package http

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
)

// idParam parses the :id route parameter.
func idParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ListFieldsHandler returns fields, optionally filtered by ?search=.
func ListFieldsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		search := c.Query("search")
		if len(search) > 200 {
			return errBadRequest(c, "search too long (max 200 characters)")
		}
		offset, limit := pageParams(c)

		fields, total, err := deps.Fields.List(c.UserContext(), search, offset, limit)
		if err != nil {
			return errInternal(c, err)
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: fields, Pagination: pg})
	}
}

// CreateFieldHandler registers a new field.
func CreateFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in usecases.FieldInput
		if err := json.Unmarshal(c.Body(), &in); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		f, err := deps.Fields.Create(c.UserContext(), in)
		if err != nil {
			return respondError(c, err, "field not found")
		}
		c.Location("/v1/fields/" + strconv.FormatInt(f.ID, 10))
		return c.Status(fiber.StatusCreated).JSON(f)
	}
}

// GetFieldHandler returns the field detail view.
func GetFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return errBadRequest(c, "field id must be a positive integer")
		}

		detail, err := deps.Fields.Detail(c.UserContext(), id)
		if err != nil {
			return respondError(c, err, "field not found")
		}
		return c.JSON(detail)
	}
}

// UpdateFieldHandler replaces a field's attributes.
func UpdateFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return errBadRequest(c, "field id must be a positive integer")
		}
		var in usecases.FieldInput
		if err := json.Unmarshal(c.Body(), &in); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		f, err := deps.Fields.Update(c.UserContext(), id, in)
		if err != nil {
			return respondError(c, err, "field not found")
		}
		return c.JSON(f)
	}
}

// DeleteFieldHandler removes a field with its readings.
func DeleteFieldHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return errBadRequest(c, "field id must be a positive integer")
		}
		if err := deps.Fields.Delete(c.UserContext(), id); err != nil {
			return respondError(c, err, "field not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// FieldSightingsHandler returns the distinct disease sightings of a field.
func FieldSightingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return errBadRequest(c, "field id must be a positive integer")
		}

		sightings, err := deps.Fields.Sightings(c.UserContext(), id)
		if err != nil {
			return respondError(c, err, "field not found")
		}
		return c.JSON(sightings)
	}
}

// TileHandler returns the map tile covering ?lat=&lon= at ?zoom=.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			return errBadRequest(c, "lat is required and must be a number")
		}
		lon, err := strconv.ParseFloat(c.Query("lon"), 64)
		if err != nil {
			return errBadRequest(c, "lon is required and must be a number")
		}

		tile, url, err := deps.Fields.Tile(lat, lon, c.QueryInt("zoom", 0))
		if err != nil {
			return respondError(c, err, "")
		}
		return c.JSON(fiber.Map{
			"x":    tile.X,
			"y":    tile.Y,
			"zoom": tile.Zoom,
			"url":  url,
		})
	}
}
