package common

import "strings"

// ParseBoolPtr parses common truthy/falsy strings, returning nil when unset or unrecognised.
func ParseBoolPtr(value string) *bool {
	var b bool
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		b = true
	case "0", "false", "no", "off":
		b = false
	default:
		return nil
	}
	return &b
}
