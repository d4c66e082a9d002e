// Package engine runs one RunSpec inside an isolated process tree.
package engine

import (
	"context"

	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
// A returned error means the sandbox could not be provisioned or observed;
// anything the program itself does is reported in the RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}
