package compare

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		strict   bool
		lenient  bool
	}{
		{name: "identical", actual: "[0,1]", expected: "[0,1]", strict: true, lenient: true},
		{name: "trailing newline only", actual: "[0,1]\n", expected: "[0,1]", strict: true, lenient: true},
		{name: "newline on both", actual: "a\n", expected: "a\n", strict: true, lenient: true},
		{name: "two trailing newlines", actual: "a\n\n", expected: "a", strict: false, lenient: true},
		{name: "inner spacing", actual: "1  2\t3", expected: "1 2 3", strict: false, lenient: true},
		{name: "leading whitespace", actual: "  x", expected: "x", strict: false, lenient: true},
		{name: "crlf", actual: "x\r\n", expected: "x", strict: false, lenient: true},
		{name: "different token", actual: "[1,0]", expected: "[0,1]", strict: false, lenient: false},
		{name: "token split by space", actual: "ab", expected: "a b", strict: false, lenient: false},
		{name: "empty vs newline", actual: "", expected: "\n", strict: true, lenient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.actual, tt.expected, Strict); got != tt.strict {
				t.Fatalf("strict: expected %v, got %v", tt.strict, got)
			}
			if got := Match(tt.actual, tt.expected, Lenient); got != tt.lenient {
				t.Fatalf("lenient: expected %v, got %v", tt.lenient, got)
			}
		})
	}
}

// Anything accepted strictly must be accepted leniently.
func TestStrictImpliesLenient(t *testing.T) {
	samples := []string{"", "\n", "a", "a\n", " a", "a b", "a  b\n", "\t", "1\n2\n"}
	for _, a := range samples {
		for _, b := range samples {
			if Match(a, b, Strict) && !Match(a, b, Lenient) {
				t.Fatalf("strict match %q/%q rejected by lenient policy", a, b)
			}
		}
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor(true) != Strict || PolicyFor(false) != Lenient {
		t.Fatalf("unexpected policy mapping")
	}
}
