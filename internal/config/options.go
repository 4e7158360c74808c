package config

import (
	"fmt"
	"strconv"
)

// OptString returns the string value of key in e.Options, or "" when the key
// is missing or not a string.
func (e ProviderEntry) OptString(key string) string {
	if e.Options == nil {
		return ""
	}
	v, ok := e.Options[key].(string)
	if !ok {
		return ""
	}
	return v
}

// OptFloat returns the numeric value of key in e.Options. YAML decodes
// numbers as int or float64; numeric strings are accepted too.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	if e.Options == nil {
		return def
	}
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func fmtAny(v any) string {
	return fmt.Sprintf("%v", v)
}
