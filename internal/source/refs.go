package source

import (
	"strings"

	"github.com/bit-broker/examples/pkg/entity"
)

const refScheme = "bbk://"

// RewriteRef substitutes cid for the {cid} placeholder in a bbk:// reference
// held at prop. prop is a dot path rooted at entity or instance; paths
// without either root are resolved inside entity. It reports whether the
// record changed.
func RewriteRef(rec *entity.Record, prop, cid string) bool {
	if prop == "" || cid == "" {
		return false
	}
	path := strings.Split(prop, ".")
	root := rec.Entity
	switch path[0] {
	case "entity":
		path = path[1:]
	case "instance":
		root = rec.Instance
		path = path[1:]
	}
	if len(path) == 0 {
		return false
	}

	v, ok := lookupPath(root, path)
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, refScheme) || !strings.Contains(s, "{cid}") {
		return false
	}
	return setPath(root, path, strings.ReplaceAll(s, "{cid}", cid))
}

func lookupPath(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path []string, value any) bool {
	parent := m
	for _, key := range path[:len(path)-1] {
		next, ok := parent[key].(map[string]any)
		if !ok {
			return false
		}
		parent = next
	}
	parent[path[len(path)-1]] = value
	return true
}
