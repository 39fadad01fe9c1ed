package scanner

import (
	"errors"
	"testing"
)

func TestValidateTarget(t *testing.T) {
	valid := []struct{ targetType, value string }{
		{"username", "alice"},
		{"username", "alice_b-99.x"},
		{"email", "alice@example.com"},
		{"email", "a.b+c@mail.example.co.uk"},
		{"phone", "+15551234567"},
		{"phone", "555 123-4567"},
	}
	for _, tc := range valid {
		if err := validateTarget(tc.targetType, tc.value); err != nil {
			t.Errorf("validateTarget(%q, %q) = %v, want nil", tc.targetType, tc.value, err)
		}
	}

	invalid := []struct{ targetType, value string }{
		{"username", ""},
		{"username", "-leading"},
		{"username", "has space"},
		{"email", "not-an-email"},
		{"email", "a@b"},
		{"phone", "abc"},
		{"domain", "example.com"},
		{"email", "alice@example.com; rm -rf /"},
		{"username", "$(whoami)"},
	}
	for _, tc := range invalid {
		err := validateTarget(tc.targetType, tc.value)
		if err == nil {
			t.Errorf("validateTarget(%q, %q) = nil, want error", tc.targetType, tc.value)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("validateTarget(%q, %q) error type %T, want *ValidationError", tc.targetType, tc.value, err)
		}
	}
}
