// Package config loads ticketflow configuration.
//
// The top-level file config is typed (Load). Provider-specific options are
// free-form and exposed through the generic accessor type Options, so LLM
// backend factories can pull what they need without a schema change.
package config

import (
	"time"
)

// Options wraps a map[string]any for type-safe value extraction.
// All accessor methods return default values if the key is missing
// or the value cannot be converted to the requested type.
type Options struct {
	data map[string]any
}

// NewOptions creates Options from the given map.
// If data is nil, empty Options are returned.
func NewOptions(data map[string]any) Options {
	if data == nil {
		data = make(map[string]any)
	}
	return Options{data: data}
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (o Options) String(key, defaultVal string) string {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (o Options) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not a bool.
func (o Options) Bool(key string, defaultVal bool) bool {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
func (o Options) Int(key string, defaultVal int) int {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		// Only convert if there's no fractional part
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (o Options) Float(key string, defaultVal float64) float64 {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return defaultVal
}

// StringSlice returns the []string value for key, or defaultVal if missing
// or not convertible. YAML sequences decode as []any, so both shapes are
// accepted.
func (o Options) StringSlice(key string, defaultVal []string) []string {
	v, ok := o.data[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}
