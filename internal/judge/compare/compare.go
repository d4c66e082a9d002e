// Package compare decides whether program output matches the expected answer.
package compare

import "strings"

// Policy selects how output is compared.
type Policy int

const (
	// Lenient collapses every whitespace run to one space and trims both ends.
	Lenient Policy = iota
	// Strict compares bytes after dropping one trailing newline from each side.
	Strict
)

// PolicyFor maps a contest strictValidation flag to a policy.
func PolicyFor(strictValidation bool) Policy {
	if strictValidation {
		return Strict
	}
	return Lenient
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Match reports whether actual equals expected under the policy.
func Match(actual, expected string, policy Policy) bool {
	if policy == Strict {
		return strings.TrimSuffix(actual, "\n") == strings.TrimSuffix(expected, "\n")
	}
	return normalize(actual) == normalize(expected)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
