package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownSentinel is what categorical transforms produce for values that
// were present but uninterpretable. Distinct from nil (value absent or
// unparseable numeric): "unknown" preserves the signal that the source
// carried something.
const UnknownSentinel = "unknown"

// FieldMapping declares one source-to-canonical attribute transform.
type FieldMapping struct {
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	Transform string `yaml:"transform" json:"transform"`
}

// transformFunc is a named, pure, total transform: it never panics and
// signals failure by returning nil.
type transformFunc func(v any) any

// transforms is the registry of named transforms available to layer
// configurations. Unknown names default to identity so a typo in a layer
// file degrades to passthrough rather than dropping data.
var transforms = map[string]transformFunc{
	"identity":     transformIdentity,
	"string":       transformString,
	"float":        transformFloat,
	"int":          transformInt,
	"upper":        transformUpper,
	"year":         transformYear,
	"status_code":  transformStatusCode,
	"flood_zone":   transformFloodZone,
	"wetland_type": transformWetlandType,
}

// MapFields applies the declarative mappings and constants to a source
// attribute bag, producing a flat canonical record. Missing source fields
// map to nil targets; constants are stamped last and win over mapped values.
func MapFields(attrs map[string]any, mappings []FieldMapping, constants map[string]any) map[string]any {
	out := make(map[string]any, len(mappings)+len(constants))
	for _, m := range mappings {
		fn, ok := transforms[m.Transform]
		if !ok {
			fn = transformIdentity
		}
		v, present := attrs[m.Source]
		if !present {
			out[m.Target] = nil
			continue
		}
		out[m.Target] = fn(v)
	}
	for k, v := range constants {
		out[k] = v
	}
	return out
}

func transformIdentity(v any) any { return v }

func transformString(v any) any {
	if v == nil {
		return nil
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func transformFloat(v any) any {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return f
}

func transformInt(v any) any {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return int64(f)
}

func transformUpper(v any) any {
	s := transformString(v)
	if s == nil {
		return nil
	}
	return strings.ToUpper(s.(string))
}

// transformYear extracts a plausible install/effective year. Accepts bare
// years and date-like strings ("1987", "1987-06-01", "06/01/1987").
func transformYear(v any) any {
	if f, ok := toFloat(v); ok && f >= 1800 && f <= 2200 {
		return int64(f)
	}
	s, _ := transformString(v).(string)
	if s == "" {
		return nil
	}
	for _, sep := range []string{"-", "/"} {
		for _, part := range strings.Split(s, sep) {
			if f, err := strconv.ParseFloat(part, 64); err == nil && f >= 1800 && f <= 2200 {
				return int64(f)
			}
		}
	}
	return nil
}

// transformStatusCode normalizes asset lifecycle status codes. Unrecognized
// non-empty input maps to the unknown sentinel, not nil.
func transformStatusCode(v any) any {
	s, _ := transformString(v).(string)
	if s == "" {
		return nil
	}
	switch strings.ToUpper(s) {
	case "ACT", "ACTIVE", "IN SERVICE", "INSERVICE", "I":
		return "active"
	case "ABN", "ABAND", "ABANDONED", "A":
		return "abandoned"
	case "PROP", "PROPOSED", "P":
		return "proposed"
	case "RET", "RETIRED", "REM", "REMOVED":
		return "retired"
	default:
		return UnknownSentinel
	}
}

// transformFloodZone normalizes FEMA flood-zone designations. Unrecognized
// non-empty input maps to the unknown sentinel.
func transformFloodZone(v any) any {
	s, _ := transformString(v).(string)
	if s == "" {
		return nil
	}
	z := strings.ToUpper(s)
	switch {
	case z == "AE" || z == "A" || strings.HasPrefix(z, "A1") || z == "AH" || z == "AO":
		return "100yr"
	case z == "VE" || z == "V":
		return "coastal_100yr"
	case z == "X" || z == "B" || z == "C" || strings.Contains(z, "0.2"):
		return "500yr_or_minimal"
	case z == "D":
		return "undetermined"
	default:
		return UnknownSentinel
	}
}

// transformWetlandType normalizes NWI wetland classification codes by
// system letter (Cowardin classification).
func transformWetlandType(v any) any {
	s, _ := transformString(v).(string)
	if s == "" {
		return nil
	}
	switch strings.ToUpper(s[:1]) {
	case "P":
		return "palustrine"
	case "L":
		return "lacustrine"
	case "R":
		return "riverine"
	case "E":
		return "estuarine"
	case "M":
		return "marine"
	default:
		return UnknownSentinel
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
