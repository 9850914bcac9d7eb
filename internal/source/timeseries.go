package source

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bit-broker/examples/pkg/entity"
)

// SeriesField binds a timeseries id to the private field carrying its points.
type SeriesField struct {
	ID    string
	Field string
}

// ParseSeriesFields parses "population:_population,gdp:_gdp". A bare name
// uses the underscore-prefixed field of the same name.
func ParseSeriesFields(s string) ([]SeriesField, error) {
	var out []SeriesField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, field, ok := strings.Cut(part, ":")
		id = strings.TrimSpace(id)
		field = strings.TrimSpace(field)
		if !ok {
			field = privatePrefix + id
		}
		if id == "" || field == "" {
			return nil, fmt.Errorf("invalid timeseries mapping %q", part)
		}
		if !strings.HasPrefix(field, privatePrefix) {
			field = privatePrefix + field
		}
		out = append(out, SeriesField{ID: id, Field: field})
	}
	return out, nil
}

// ExtractPoints decodes the points held in a private field. The value is a
// list of {"from","value"} objects (or its JSON text, as CSV cells carry
// it). from is a year number or a timestamp accepted by entity.ParseTime.
func ExtractPoints(raw any) ([]entity.Point, error) {
	if s, ok := raw.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		raw = decoded
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("points must be a list, got %T", raw)
	}

	points := make([]entity.Point, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("point %d is not an object", i)
		}
		from, err := pointTime(obj["from"])
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		points = append(points, entity.Point{From: from, Value: obj["value"]})
	}
	return points, nil
}

func pointTime(v any) (t time.Time, err error) {
	switch x := v.(type) {
	case float64:
		return entity.YearStart(int(x)), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return entity.ParseTime(x.String())
		}
		return entity.YearStart(int(n)), nil
	case string:
		t, err := entity.ParseTime(x)
		if err == nil && t.IsZero() {
			return t, fmt.Errorf("missing from")
		}
		return t, err
	default:
		return t, fmt.Errorf("invalid from %v", v)
	}
}
