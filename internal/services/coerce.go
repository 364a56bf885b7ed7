package services

import (
	"fmt"
	"strconv"
	"strings"
)

// Model output is JSON-shaped but loosely typed: numbers arrive as strings,
// arrays hold mixed members, and entire fields go missing. These helpers pull
// typed values out of a decoded map without ever panicking.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func strField(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fallback
	}
}

func intField(m map[string]any, key string, fallback int) int {
	if m == nil {
		return fallback
	}
	return intFromAny(m[key], fallback)
}

func intFromAny(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	switch n := m[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolField(m map[string]any, key string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func strSliceField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, member := range raw {
		switch v := member.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}
