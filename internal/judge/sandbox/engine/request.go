package engine

import (
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/spec"
)

// initRequest is the JSON document sandbox-init reads from stdin.
type initRequest struct {
	RunSpec       spec.RunSpec
	Isolation     profile.IsolationProfile
	EnableSeccomp bool
}
