// Package diagnosis turns free-form classifier answers into structured
// crop diagnoses.
package diagnosis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// Stored lengths, in characters, of diagnosis text columns.
const (
	MaxCropNameLen = 255
	MaxTextLen     = 4000
)

var (
	ErrEmptyResponse = errors.New("empty classifier response")
	ErrNoJSONObject  = errors.New("no JSON object in classifier response")
)

// Sentinel is the diagnosis recorded when classification could not be
// completed. The reason is kept for observability.
func Sentinel(reason error) domain.Diagnosis {
	msg := "unknown classifier failure"
	if reason != nil {
		msg = reason.Error()
	}
	return domain.Diagnosis{
		CropName: domain.DefaultCropName,
		Error:    Clean(msg, MaxTextLen),
	}
}

// Clean prepares untrusted text for a text column. NUL bytes and invalid
// UTF-8 are dropped, surrounding space is trimmed and the result is cut to
// at most limit characters.
func Clean(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return s
}

// Parse extracts a diagnosis from classifier output. Code fences and text
// around the object are tolerated; missing keys take reading defaults.
func Parse(text string) (domain.Diagnosis, error) {
	// Fences are only stripped from answers that do not decode as they are,
	// since a fence marker may sit inside a string value.
	if d, err := decode([]byte(text)); err == nil {
		return d, nil
	}

	body := StripCodeFences(text)
	if body == "" {
		return domain.Diagnosis{}, ErrEmptyResponse
	}

	if d, err := decode([]byte(body)); err == nil {
		return d, nil
	}

	obj, ok := ExtractObject(body)
	if !ok {
		return domain.Diagnosis{}, fmt.Errorf("%w: %s", ErrNoJSONObject, snippet(body))
	}
	d, err := decode([]byte(obj))
	if err != nil {
		return domain.Diagnosis{}, fmt.Errorf("decode diagnosis: %w", err)
	}
	return d, nil
}

// StripCodeFences removes a ``` fence, with an optional language tag, from
// around s. Text before the opening fence is dropped.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]

	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		if isLanguageTag(strings.TrimSpace(rest[:nl])) {
			rest = rest[nl+1:]
		}
	} else {
		rest = strings.TrimLeftFunc(rest, isTagRune)
	}

	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// ExtractObject returns the first balanced {...} span of s that is valid JSON.
func ExtractObject(s string) (string, bool) {
	for from := 0; from < len(s); {
		i := strings.IndexByte(s[from:], '{')
		if i < 0 {
			return "", false
		}
		start := from + i
		if end, ok := matchBrace(s, start); ok {
			if candidate := s[start : end+1]; json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		from = start + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

type rawDiagnosis struct {
	CropName    *flexString `json:"crop_name"`
	Description *flexString `json:"description"`
	IsDisease   *flexBool   `json:"is_disease"`
	Solution    *flexString `json:"solution"`
	IsNotCrop   *flexBool   `json:"is_not_crop"`
}

func decode(data []byte) (domain.Diagnosis, error) {
	data = bytes.TrimSpace(data)

	// A one-element array wrapping the object is accepted.
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return domain.Diagnosis{}, err
		}
		if len(items) == 0 {
			return domain.Diagnosis{}, ErrNoJSONObject
		}
		data = bytes.TrimSpace(items[0])
	}
	if len(data) == 0 || data[0] != '{' {
		return domain.Diagnosis{}, ErrNoJSONObject
	}

	var raw rawDiagnosis
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Diagnosis{}, err
	}

	d := domain.Diagnosis{
		CropName: domain.DefaultCropName,
		Solution: domain.DefaultSolution,
	}
	if raw.CropName != nil {
		if v := Clean(string(*raw.CropName), MaxCropNameLen); v != "" {
			d.CropName = v
		}
	}
	if raw.Description != nil {
		d.Description = Clean(string(*raw.Description), MaxTextLen)
	}
	if raw.Solution != nil {
		if v := Clean(string(*raw.Solution), MaxTextLen); v != "" {
			d.Solution = v
		}
	}
	if raw.IsDisease != nil {
		d.IsDisease = bool(*raw.IsDisease)
	}
	if raw.IsNotCrop != nil {
		d.IsNotCrop = bool(*raw.IsNotCrop)
	}
	return d, nil
}

// flexBool accepts JSON booleans, numbers and common string spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case float64:
		*b = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}

// flexString accepts strings and renders numbers and booleans as text.
// Objects, arrays and null read as empty.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '{' || data[0] == '[' || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = flexString(data)
	return nil
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !isTagRune(r) {
			return false
		}
	}
	return true
}

func isTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

func snippet(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
