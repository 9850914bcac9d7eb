// Package entity defines the record model shared by connector sources, stores,
// the catalog session client and the webhook.
package entity

import (
	"encoding/json"
	"time"
)

// Record is a normalized entity ready for upload to the catalog.
//
// Private holds source fields that are only meaningful to the connector itself
// (enrichment references, embedded timeseries). It is never serialized.
type Record struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Entity   map[string]any `json:"entity"`
	Instance map[string]any `json:"instance,omitempty"`
	Private  map[string]any `json:"-"`
}

// Clone returns a deep copy of the record's maps and lists.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		ID:       r.ID,
		Name:     r.Name,
		Entity:   cloneMap(r.Entity),
		Instance: cloneMap(r.Instance),
		Private:  cloneMap(r.Private),
	}
}

// PrivateString returns the private field as a string, if present.
func (r *Record) PrivateString(field string) (string, bool) {
	if r == nil || r.Private == nil {
		return "", false
	}
	v, ok := r.Private[field].(string)
	return v, ok && v != ""
}

// IDs returns the ids of records in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	return ids
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

// Point is one sample of a timeseries.
type Point struct {
	From  time.Time `json:"from"`
	Value any       `json:"value"`
}

// Series maps entity id -> timeseries id -> points in ascending time order.
type Series map[string]map[string][]Point

// Add appends points for an entity timeseries.
func (s Series) Add(entityID, seriesID string, points ...Point) {
	byID, ok := s[entityID]
	if !ok {
		byID = make(map[string][]Point)
		s[entityID] = byID
	}
	byID[seriesID] = append(byID[seriesID], points...)
}

// Dataset is the full set of records a connector synchronizes in one run.
type Dataset struct {
	Records []Record
	Series  Series
}

// MarshalJSON keeps the entity object present even when empty, which the
// catalog requires on upsert.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	p := plain(r)
	if p.Entity == nil {
		p.Entity = map[string]any{}
	}
	return json.Marshal(p)
}
