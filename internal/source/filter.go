package source

import (
	"fmt"
	"strings"

	"github.com/bit-broker/examples/pkg/entity"
)

// Filter keeps records whose entity attribute equals a value. The zero
// Filter keeps everything.
type Filter struct {
	Attr  string
	Value string
}

// ParseFilter accepts "attr=value" (attr may be a dot path into entity) and
// the legacy "ATTR_EQ_VALUE" form, e.g. CATEGORY_EQ_NATURAL.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}
	if attr, value, ok := strings.Cut(s, "="); ok {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			return Filter{}, fmt.Errorf("invalid filter %q", s)
		}
		return Filter{Attr: attr, Value: strings.TrimSpace(value)}, nil
	}
	if attr, value, ok := strings.Cut(s, "_EQ_"); ok && attr != "" && value != "" {
		return Filter{Attr: strings.ToLower(attr), Value: strings.ToLower(value)}, nil
	}
	return Filter{}, fmt.Errorf("invalid filter %q: want attr=value", s)
}

// IsZero reports whether the filter keeps everything.
func (f Filter) IsZero() bool { return f.Attr == "" }

// Match reports whether rec passes the filter.
func (f Filter) Match(rec *entity.Record) bool {
	if f.IsZero() {
		return true
	}
	v, ok := lookupPath(rec.Entity, strings.Split(f.Attr, "."))
	return ok && stringValue(v) == f.Value
}

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	return f.Attr + "=" + f.Value
}
