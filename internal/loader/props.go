package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// hiddenKeys are styling properties that are never shown in popups.
var hiddenKeys = map[string]bool{
	"style":        true,
	"_style":       true,
	"visual_style": true,
}

// DisplayProperties returns a copy of props without the internal styling keys.
func DisplayProperties(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		if hiddenKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// SortedKeys returns the property names in a stable order.
func SortedKeys(props geojson.Properties) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldID returns the field identifier of a polygon feature, or "".
func FieldID(props geojson.Properties) string {
	for _, key := range []string{"Field_id", "field_id", "FIELD_ID", "FieldID", "fid"} {
		if s := propString(props, key); s != "" {
			return s
		}
	}
	return ""
}

func propString(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
