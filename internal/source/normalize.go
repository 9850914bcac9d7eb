package source

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bit-broker/examples/pkg/entity"
)

const (
	entityPrefix   = "entity/"
	instancePrefix = "instance/"
	privatePrefix  = "_"
)

// NormalizeRow converts a flat spreadsheet-style row into a record.
//
// id and name stay top level. Columns prefixed entity/ or instance/ land in
// the matching section, underscore columns are private and everything else is
// entity data. A longitude/latitude pair becomes a GeoJSON Point location.
func NormalizeRow(row map[string]any) (entity.Record, error) {
	rec := entity.Record{Entity: map[string]any{}}
	id, err := recordID(row["id"])
	if err != nil {
		return rec, err
	}
	rec.ID = id
	rec.Name = stringValue(row["name"])

	for key, value := range row {
		switch {
		case key == "id" || key == "name":
		case strings.HasPrefix(key, privatePrefix):
			setPrivate(&rec, key, value)
		case strings.HasPrefix(key, entityPrefix):
			rec.Entity[strings.TrimPrefix(key, entityPrefix)] = value
		case strings.HasPrefix(key, instancePrefix):
			if rec.Instance == nil {
				rec.Instance = map[string]any{}
			}
			rec.Instance[strings.TrimPrefix(key, instancePrefix)] = value
		default:
			rec.Entity[key] = value
		}
	}

	lon, hasLon := rec.Entity["longitude"]
	lat, hasLat := rec.Entity["latitude"]
	if hasLon && hasLat {
		rec.Entity["location"] = map[string]any{
			"type":        "Point",
			"coordinates": []any{lon, lat},
		}
		delete(rec.Entity, "longitude")
		delete(rec.Entity, "latitude")
	}
	return rec, nil
}

// NormalizeItem converts a JSON dataset item into a record. Items already
// carry entity and instance objects; underscore keys are private and any
// other key is folded into entity.
func NormalizeItem(item map[string]any) (entity.Record, error) {
	rec := entity.Record{Entity: map[string]any{}}
	id, err := recordID(item["id"])
	if err != nil {
		return rec, err
	}
	rec.ID = id
	rec.Name = stringValue(item["name"])

	for key, value := range item {
		switch {
		case key == "id" || key == "name":
		case key == "entity":
			if m, ok := value.(map[string]any); ok {
				for k, v := range m {
					rec.Entity[k] = v
				}
			}
		case key == "instance":
			if m, ok := value.(map[string]any); ok && len(m) > 0 {
				rec.Instance = m
			}
		case strings.HasPrefix(key, privatePrefix):
			setPrivate(&rec, key, value)
		default:
			rec.Entity[key] = value
		}
	}
	return rec, nil
}

// Item renders a record back into the JSON item shape, private fields included.
// NormalizeItem(Item(r)) reproduces r.
func Item(rec *entity.Record) map[string]any {
	item := map[string]any{"id": rec.ID, "entity": rec.Entity}
	if rec.Entity == nil {
		item["entity"] = map[string]any{}
	}
	if rec.Name != "" {
		item["name"] = rec.Name
	}
	if len(rec.Instance) > 0 {
		item["instance"] = rec.Instance
	}
	for k, v := range rec.Private {
		item[k] = v
	}
	return item
}

func setPrivate(rec *entity.Record, key string, value any) {
	if rec.Private == nil {
		rec.Private = map[string]any{}
	}
	rec.Private[key] = value
}

func recordID(v any) (string, error) {
	id := stringValue(v)
	if strings.TrimSpace(id) == "" {
		return "", wrapError(CodeInvalidRecord, false, fmt.Errorf("record has no id"))
	}
	return id, nil
}

// stringValue renders scalar ids and names; whole floats print without a
// fraction so spreadsheet ids like 7 stay "7".
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return stringValue(float64(x))
	default:
		return fmt.Sprint(x)
	}
}
