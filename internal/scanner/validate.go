package scanner

import (
	"regexp"
	"strings"

	"github.com/jamesruggles/footprint/internal/provider"
)

var (
	usernameRegex  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,63}$`)
	emailRegex     = regexp.MustCompile(`^[^@\s]+@[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)+$`)
	phoneRegex     = regexp.MustCompile(`^\+?[0-9][0-9 \-().]{5,24}$`)
	dangerousChars = regexp.MustCompile("[;|&`$(){}\\[\\]!<>\\\\\"']")
)

// validateTarget checks that the target value has a type-appropriate shape.
func validateTarget(targetType, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return &ValidationError{Field: "value", Reason: "cannot be empty"}
	}
	if dangerousChars.MatchString(value) {
		return &ValidationError{Field: "value", Reason: "contains invalid characters"}
	}

	switch targetType {
	case provider.TargetUsername:
		if !usernameRegex.MatchString(value) {
			return &ValidationError{Field: "value", Reason: "not a valid username"}
		}
	case provider.TargetEmail:
		if len(value) > 254 || !emailRegex.MatchString(value) {
			return &ValidationError{Field: "value", Reason: "not a valid email address"}
		}
	case provider.TargetPhone:
		if !phoneRegex.MatchString(value) {
			return &ValidationError{Field: "value", Reason: "not a valid phone number"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be username, email, or phone"}
	}
	return nil
}
