// Package profile defines language and task profiles used by the sandbox.
package profile

import (
	"math"
	"path"
	"strings"

	"github.com/google/shlex"

	"codearena/internal/judge/sandbox/spec"
	appErr "codearena/pkg/errors"
)

// LanguageSpec defines how to compile and run a language.
type LanguageSpec struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	Version          string   `yaml:"version"`
	SourceFile       string   `yaml:"sourceFile"`
	BinaryFile       string   `yaml:"binaryFile"`
	CompileEnabled   bool     `yaml:"compileEnabled"`
	CompileCmdTpl    string   `yaml:"compileCmd"`
	RunCmdTpl        string   `yaml:"runCmd"`
	Env              []string `yaml:"env"`
	TimeMultiplier   float64  `yaml:"timeMultiplier"`
	MemoryMultiplier float64  `yaml:"memoryMultiplier"`
}

// ArtifactFile is the file the run command consumes: the binary for compiled
// languages, the source itself otherwise.
func (l LanguageSpec) ArtifactFile() string {
	if l.CompileEnabled {
		return l.BinaryFile
	}
	return l.SourceFile
}

// CompileCommand expands the compile template against workDir.
func (l LanguageSpec) CompileCommand(workDir string) ([]string, error) {
	return l.expand(l.CompileCmdTpl, workDir)
}

// RunCommand expands the run template against workDir.
func (l LanguageSpec) RunCommand(workDir string) ([]string, error) {
	return l.expand(l.RunCmdTpl, workDir)
}

func (l LanguageSpec) expand(tpl, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	replacer := strings.NewReplacer(
		"{src}", path.Join(workDir, l.SourceFile),
		"{bin}", path.Join(workDir, l.BinaryFile),
		"{dir}", workDir,
	)
	fields, err := shlex.Split(replacer.Replace(tpl))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// Scale applies the language time and memory multipliers.
func (l LanguageSpec) Scale(limits spec.ResourceLimit) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, l.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, l.TimeMultiplier)
	limits.MemoryBytes = scaleLimit(limits.MemoryBytes, l.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

var basePath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// DefaultLanguages returns the built-in adapters for every supported language.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID: "c", Name: "C", Version: "gnu11",
			SourceFile: "main.c", BinaryFile: "main", CompileEnabled: true,
			CompileCmdTpl: "gcc -O2 -std=gnu11 -pipe -o {bin} {src} -lm",
			RunCmdTpl:     "{bin}",
			Env:           []string{basePath},
		},
		{
			ID: "cpp", Name: "C++", Version: "gnu++17",
			SourceFile: "main.cpp", BinaryFile: "main", CompileEnabled: true,
			CompileCmdTpl: "g++ -O2 -std=gnu++17 -pipe -o {bin} {src}",
			RunCmdTpl:     "{bin}",
			Env:           []string{basePath},
		},
		{
			ID: "go", Name: "Go", Version: "1.22",
			SourceFile: "main.go", BinaryFile: "main", CompileEnabled: true,
			CompileCmdTpl: "go build -o {bin} {src}",
			RunCmdTpl:     "{bin}",
			Env:           []string{basePath + ":/usr/local/go/bin", "GOCACHE=/tmp/gocache", "HOME=/tmp", "CGO_ENABLED=0"},
		},
		{
			ID: "java", Name: "Java", Version: "17",
			SourceFile: "Main.java", BinaryFile: "Main.jar", CompileEnabled: true,
			CompileCmdTpl:    "sh -c 'mkdir -p {dir}/classes && javac -d {dir}/classes {src} && jar cf {bin} -C {dir}/classes .'",
			RunCmdTpl:        "java -Xss64m -XX:+UseSerialGC -cp {bin} Main",
			Env:              []string{basePath, "HOME=/tmp"},
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID: "python", Name: "Python", Version: "3",
			SourceFile: "main.py",
			RunCmdTpl:  "python3 -B {src}",
			Env:        []string{basePath, "PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},

			TimeMultiplier: 3,
		},
		{
			ID: "javascript", Name: "JavaScript", Version: "node",
			SourceFile: "main.js",
			RunCmdTpl:  "node {src}",
			Env:        []string{basePath},

			TimeMultiplier: 2,
		},
	}
}
