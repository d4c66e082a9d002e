package profile

import (
	"fmt"
	"strings"

	"codearena/internal/judge/sandbox/spec"
	appErr "codearena/pkg/errors"
)

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     string             `yaml:"languageId"`
	TaskType       TaskType           `yaml:"taskType"`
	RootFS         string             `yaml:"rootfs"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DefaultLimits  spec.ResourceLimit `yaml:"defaultLimits"`
}

// IsolationProfile is the part of a task profile the engine enforces.
// Network isolation is not configurable and is always applied.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
}

// Name builds the engine profile key for a language and task.
func Name(languageID string, taskType TaskType) string {
	return languageID + ":" + string(taskType)
}

// DefaultCompileLimits are generous limits used for toolchains.
func DefaultCompileLimits() spec.ResourceLimit {
	return spec.ResourceLimit{
		CPUTimeMs:   10000,
		WallTimeMs:  20000,
		MemoryBytes: 1 << 30,
		StackBytes:  spec.DefaultStackBytes,
		OutputBytes: 64 << 20,
		PIDs:        256,
	}
}

// Registry resolves languages and task profiles by id.
// Registry is read-only after construction.
type Registry struct {
	languages map[string]LanguageSpec
	tasks     map[string]TaskProfile
}

// NewRegistry indexes the given languages. Any language without an explicit
// task profile gets compile and run profiles with defaultRootFS and defaultSeccomp.
func NewRegistry(languages []LanguageSpec, tasks []TaskProfile, defaultRootFS, defaultSeccomp string) (*Registry, error) {
	r := &Registry{
		languages: make(map[string]LanguageSpec, len(languages)),
		tasks:     make(map[string]TaskProfile, len(languages)*2),
	}
	for _, lang := range languages {
		if lang.ID == "" {
			return nil, fmt.Errorf("language id is required")
		}
		if lang.RunCmdTpl == "" {
			return nil, fmt.Errorf("language %s: run command is required", lang.ID)
		}
		if lang.CompileEnabled && (lang.CompileCmdTpl == "" || lang.BinaryFile == "") {
			return nil, fmt.Errorf("language %s: compile command and binary file are required", lang.ID)
		}
		r.languages[lang.ID] = lang
	}
	for _, task := range tasks {
		if _, ok := r.languages[task.LanguageID]; !ok {
			return nil, fmt.Errorf("task profile references unknown language %q", task.LanguageID)
		}
		r.tasks[Name(task.LanguageID, task.TaskType)] = task
	}
	for id := range r.languages {
		for _, taskType := range []TaskType{TaskTypeCompile, TaskTypeRun} {
			key := Name(id, taskType)
			if _, ok := r.tasks[key]; ok {
				continue
			}
			task := TaskProfile{
				LanguageID:     id,
				TaskType:       taskType,
				RootFS:         defaultRootFS,
				SeccompProfile: defaultSeccomp,
			}
			if taskType == TaskTypeCompile {
				task.DefaultLimits = DefaultCompileLimits()
			} else {
				task.DefaultLimits = spec.DefaultLimits()
			}
			r.tasks[key] = task
		}
	}
	return r, nil
}

// Language returns the adapter for a language id.
func (r *Registry) Language(id string) (LanguageSpec, error) {
	lang, ok := r.languages[strings.ToLower(id)]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", id)
	}
	return lang, nil
}

// Task returns the task profile for a language.
func (r *Registry) Task(languageID string, taskType TaskType) (TaskProfile, error) {
	task, ok := r.tasks[Name(languageID, taskType)]
	if !ok {
		return TaskProfile{}, appErr.Newf(appErr.LanguageNotSupported, "no %s profile for language %q", taskType, languageID)
	}
	return task, nil
}

// Resolve implements the engine profile resolver.
func (r *Registry) Resolve(name string) (IsolationProfile, error) {
	task, ok := r.tasks[name]
	if !ok {
		return IsolationProfile{}, fmt.Errorf("unknown sandbox profile %q", name)
	}
	return IsolationProfile{RootFS: task.RootFS, SeccompProfile: task.SeccompProfile}, nil
}
