// Package workspace defines the sandbox directory layout and paths.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ContainerWorkDir is where a workspace is mounted inside the sandbox.
const ContainerWorkDir = "/work"

const (
	InputName      = "input.txt"
	OutputName     = "output.txt"
	RuntimeLogName = "runtime.log"
	CompileLogName = "compile.log"
)

// ErrWorkspaceExists is returned when a run directory is already taken.
var ErrWorkspaceExists = errors.New("workspace already exists")

// Layout describes the filesystem layout for one sandbox invocation.
type Layout struct {
	RootDir      string
	SubmissionID string
	RunID        string
}

// HostPath is the host side path of a file in the workspace.
func (l Layout) HostPath(name string) string {
	return filepath.Join(l.RootDir, name)
}

// ContainerPath is the sandbox side path of a file in the workspace.
func ContainerPath(name string) string {
	return path.Join(ContainerWorkDir, name)
}

// Manager hands out per-invocation workspaces under a root directory.
type Manager struct {
	root string
}

// NewManager creates the root directory if needed.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

// Root returns the directory all workspaces live under.
func (m *Manager) Root() string {
	return m.root
}

// Create makes a fresh directory owned by one invocation. It fails if the
// directory already exists so two callers can never share a workspace.
func (m *Manager) Create(submissionID, runID string) (Layout, error) {
	if submissionID == "" || runID == "" {
		return Layout{}, fmt.Errorf("submission id and run id are required")
	}
	parent := filepath.Join(m.root, sanitize(submissionID))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Layout{}, fmt.Errorf("create submission dir: %w", err)
	}
	dir := filepath.Join(parent, sanitize(runID))
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Layout{}, fmt.Errorf("%w: %s", ErrWorkspaceExists, dir)
		}
		return Layout{}, fmt.Errorf("create run dir: %w", err)
	}
	return Layout{RootDir: dir, SubmissionID: submissionID, RunID: runID}, nil
}

// Remove deletes the workspace and, when empty, its submission directory.
func (m *Manager) Remove(l Layout) error {
	if l.RootDir == "" {
		return nil
	}
	if err := os.RemoveAll(l.RootDir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	_ = os.Remove(filepath.Dir(l.RootDir))
	return nil
}

// WriteFile writes data into the workspace.
func (l Layout) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(l.HostPath(name), data, perm)
}

// CopyIn copies a host file into the workspace under name.
func (l Layout) CopyIn(src, name string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(l.HostPath(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create artifact copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
