// Package params holds the free-form strategy parameter maps that arrive
// from YAML config or programmatic callers. Values carry whatever type the
// decoder produced, so the accessors normalize the usual numeric aliases.
package params

// Map is a bag of named strategy parameters.
type Map map[string]any

// Int returns the parameter as an int, or def when absent or not numeric.
// YAML decodes whole numbers as int and JSON as float64; both are accepted.
func (m Map) Int(key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Float returns the parameter as a float64, or def when absent or not
// numeric.
func (m Map) Float(key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// String returns the parameter as a string, or def when absent.
func (m Map) String(key string, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the parameter as a bool, or def when absent.
func (m Map) Bool(key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}
