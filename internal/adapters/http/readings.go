package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
)

const defaultMaxImageBytes = 10 << 20

var (
	errMalformedDataURI = errors.New("Malformed data URI.")
	errInvalidBase64    = errors.New("Invalid base64 image.")
)

// readingRequest is the JSON intake shape used by field devices.
type readingRequest struct {
	MainField    int64          `json:"main_field"`
	Temperature  *float64       `json:"temperature"`
	Humidity     *float64       `json:"humidity"`
	SoilMoisture *float64       `json:"soil_moisture"`
	Description  string         `json:"description"`
	Location     *domain.LatLng `json:"location"`
	Img          string         `json:"img"`
}

// CreateReadingHandler accepts a reading as JSON with a base64 image or as
// multipart form data with an img file part.
func CreateReadingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		maxImage := deps.MaxImageBytes
		if maxImage <= 0 {
			maxImage = defaultMaxImageBytes
		}

		var (
			in  usecases.SubmitReading
			err error
		)
		if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
			in, err = parseMultipartReading(c, maxImage)
		} else {
			in, err = parseJSONReading(c.Body(), maxImage)
		}
		if err != nil {
			return respondError(c, err, "")
		}

		r, err := deps.Readings.Submit(c.UserContext(), in)
		if err != nil {
			return respondError(c, err, "field not found")
		}
		c.Location("/v1/readings/" + strconv.FormatInt(r.ID, 10))
		return c.Status(fiber.StatusCreated).JSON(r)
	}
}

// ListReadingsHandler returns readings, filtered by ?field= and ?disease=.
func ListReadingsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)

		filter := ports.ReadingFilter{
			DiseaseOnly: c.QueryBool("disease", false),
			Offset:      offset,
			Limit:       limit,
		}
		if raw := c.Query("field"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				return errBadRequest(c, "field must be a positive integer")
			}
			filter.FieldID = id
		}

		readings, total, err := deps.Readings.List(c.UserContext(), filter)
		if err != nil {
			return errInternal(c, err)
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: readings, Pagination: pg})
	}
}

// GetReadingHandler returns a single reading.
func GetReadingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return errBadRequest(c, "reading id must be a positive integer")
		}
		r, err := deps.Readings.GetByID(c.UserContext(), id)
		if err != nil {
			return respondError(c, err, "reading not found")
		}
		return c.JSON(r)
	}
}

func parseJSONReading(body []byte, maxImage int) (usecases.SubmitReading, error) {
	var req readingRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return usecases.SubmitReading{}, domain.NewValidationError("body", "Invalid JSON: "+err.Error())
	}

	in := usecases.SubmitReading{
		FieldID:      req.MainField,
		Temperature:  req.Temperature,
		Humidity:     req.Humidity,
		SoilMoisture: req.SoilMoisture,
		Location:     req.Location,
		Description:  req.Description,
	}
	if req.Img != "" {
		img, mime, err := decodeImage(req.Img)
		if err != nil {
			return in, domain.NewValidationError("img", err.Error())
		}
		if len(img) > maxImage {
			return in, domain.NewValidationError("img", fmt.Sprintf("Image exceeds %d bytes.", maxImage))
		}
		in.Image, in.ImageMIME = img, mime
	}
	return in, nil
}

func parseMultipartReading(c *fiber.Ctx, maxImage int) (usecases.SubmitReading, error) {
	var in usecases.SubmitReading
	verr := &domain.ValidationError{}

	if raw := strings.TrimSpace(c.FormValue("main_field")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Add("main_field", "A valid integer is required.")
		}
		in.FieldID = id
	}
	in.Temperature = formFloat(c, "temperature", verr)
	in.Humidity = formFloat(c, "humidity", verr)
	in.SoilMoisture = formFloat(c, "soil_moisture", verr)
	in.Description = c.FormValue("description")

	if raw := strings.TrimSpace(c.FormValue("location")); raw != "" {
		var loc domain.LatLng
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			verr.Add("location", "Value must be a JSON object with lat and lng.")
		} else {
			in.Location = &loc
		}
	}

	if fh, err := c.FormFile("img"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return in, fmt.Errorf("open image part: %w", err)
		}
		defer f.Close()

		img, err := io.ReadAll(io.LimitReader(f, int64(maxImage)+1))
		if err != nil {
			return in, fmt.Errorf("read image part: %w", err)
		}
		if len(img) > maxImage {
			verr.Add("img", fmt.Sprintf("Image exceeds %d bytes.", maxImage))
		} else if len(img) > 0 {
			in.Image, in.ImageMIME = img, fh.Header.Get(fiber.HeaderContentType)
		}
	} else if raw := c.FormValue("img"); raw != "" {
		img, mime, err := decodeImage(raw)
		switch {
		case err != nil:
			verr.Add("img", err.Error())
		case len(img) > maxImage:
			verr.Add("img", fmt.Sprintf("Image exceeds %d bytes.", maxImage))
		default:
			in.Image, in.ImageMIME = img, mime
		}
	}

	return in, verr.OrNil()
}

func formFloat(c *fiber.Ctx, key string, verr *domain.ValidationError) *float64 {
	raw := strings.TrimSpace(c.FormValue(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		verr.Add(key, "A valid number is required.")
		return nil
	}
	return &v
}

// decodeImage decodes a base64 image, optionally wrapped as a data URI.
// The returned MIME type is empty unless the data URI names one.
func decodeImage(s string) ([]byte, string, error) {
	var mime string
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", errMalformedDataURI
		}
		mime = strings.TrimSuffix(s[len("data:"):comma], ";base64")
		s = s[comma+1:]
	}
	s = strings.TrimSpace(s)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if img, err := enc.DecodeString(s); err == nil {
			return img, mime, nil
		}
	}
	return nil, "", errInvalidBase64
}
