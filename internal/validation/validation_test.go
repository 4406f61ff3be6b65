package validation

import (
	"testing"
)

func TestIsValidCustomerID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"cus_0123456789abcdef01234567", true},
		{"cus_aaaaaaaaaaaaaaaaaaaaaaaa", true},

		// Invalid cases
		{"0123456789abcdef01234567", false},      // No prefix
		{"cus_0123456789abcdef0123456", false},   // Too short
		{"cus_0123456789abcdef012345678", false}, // Too long
		{"cus_0123456789ABCDEF01234567", false},  // Uppercase hex
		{"cus_ghijklmnopqrstuvwxyz1234", false},  // Invalid chars
		{"", false},
		{"cus_", false},
	}

	for _, tc := range tests {
		result := IsValidCustomerID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidCustomerID(%q) = %v, want %v", tc.id, result, tc.valid)
		}
	}
}

func TestIsValidUsername(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"nguyenvana", true},
		{"tran.thi_b", true},
		{"a12", true},

		{"ab", false},          // Too short
		{"_leading", false},    // Must start alphanumeric
		{"UPPER", false},       // Lowercase only
		{"has space", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidUsername(tc.name)
		if result != tc.valid {
			t.Errorf("IsValidUsername(%q) = %v, want %v", tc.name, result, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errors := Validate(
		Required("partnerId", "cus_0123456789abcdef01234567"),
		ValidCustomerID("partnerId", "cus_0123456789abcdef01234567"),
		PositiveAmount("amount", 1_000_000, 10_000, 500_000_000),
		DurationHours("durationHours", 24, 168),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	errors = Validate(
		Required("partnerId", ""),
		PositiveAmount("amount", 5_000, 10_000, 500_000_000),
		DurationHours("durationHours", 200, 168),
	)
	if len(errors) != 3 {
		t.Errorf("Expected 3 errors, got %d: %v", len(errors), errors)
	}
	if errors.Error() == "" {
		t.Error("Expected non-empty error string")
	}
}

func TestPositiveAmountBounds(t *testing.T) {
	if err := PositiveAmount("amount", 0, 10_000, 0)(); err == nil {
		t.Error("Expected error for zero amount")
	}
	if err := PositiveAmount("amount", -100, 10_000, 0)(); err == nil {
		t.Error("Expected error for negative amount")
	}
	// max of 0 means unbounded above
	if err := PositiveAmount("amount", 1_000_000_000_000, 10_000, 0)(); err != nil {
		t.Errorf("Expected no error with unbounded max, got %v", err)
	}
}
