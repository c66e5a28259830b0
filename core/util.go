package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// IsEmail reports whether contact looks like an email address rather than a phone number.
func IsEmail(contact string) bool {
	return strings.Contains(contact, "@")
}
