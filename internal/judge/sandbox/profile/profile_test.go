package profile

import (
	"reflect"
	"testing"

	"codearena/internal/judge/sandbox/spec"
	appErr "codearena/pkg/errors"
)

func TestDefaultRegistryCoversEveryLanguage(t *testing.T) {
	reg, err := NewRegistry(DefaultLanguages(), nil, "/srv/rootfs", "default.json")
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, id := range []string{"c", "cpp", "go", "java", "python", "javascript"} {
		lang, err := reg.Language(id)
		if err != nil {
			t.Fatalf("language %s: %v", id, err)
		}
		if _, err := lang.RunCommand("/work"); err != nil {
			t.Fatalf("run command %s: %v", id, err)
		}
		iso, err := reg.Resolve(Name(id, TaskTypeRun))
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		if iso.RootFS != "/srv/rootfs" || iso.SeccompProfile != "default.json" {
			t.Fatalf("unexpected isolation profile: %+v", iso)
		}
	}
	if _, err := reg.Language("cobol"); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestCommandExpansion(t *testing.T) {
	lang := LanguageSpec{
		SourceFile:    "Main.java",
		BinaryFile:    "Main.jar",
		CompileCmdTpl: "sh -c 'javac -d {dir}/classes {src}'",
		RunCmdTpl:     "java -cp {bin} Main",
	}
	compile, err := lang.CompileCommand("/work")
	if err != nil {
		t.Fatalf("compile command: %v", err)
	}
	want := []string{"sh", "-c", "javac -d /work/classes /work/Main.java"}
	if !reflect.DeepEqual(compile, want) {
		t.Fatalf("expected %v, got %v", want, compile)
	}
	run, err := lang.RunCommand("/work")
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !reflect.DeepEqual(run, []string{"java", "-cp", "/work/Main.jar", "Main"}) {
		t.Fatalf("unexpected run command: %v", run)
	}
	if _, err := (LanguageSpec{}).RunCommand("/work"); err == nil {
		t.Fatalf("expected error for empty template")
	}
}

func TestScaleAppliesMultipliers(t *testing.T) {
	lang := LanguageSpec{TimeMultiplier: 1.5, MemoryMultiplier: 2}
	got := lang.Scale(spec.ResourceLimit{CPUTimeMs: 1000, WallTimeMs: 3000, MemoryBytes: 100})
	if got.CPUTimeMs != 1500 || got.WallTimeMs != 4500 || got.MemoryBytes != 200 {
		t.Fatalf("unexpected scaled limits: %+v", got)
	}
	same := LanguageSpec{}.Scale(spec.ResourceLimit{CPUTimeMs: 1000})
	if same.CPUTimeMs != 1000 {
		t.Fatalf("zero multiplier should keep value, got %d", same.CPUTimeMs)
	}
}

func TestNewRegistryRejectsBrokenLanguage(t *testing.T) {
	_, err := NewRegistry([]LanguageSpec{{ID: "c", RunCmdTpl: "{bin}", CompileEnabled: true}}, nil, "", "")
	if err == nil {
		t.Fatalf("expected error for compiled language without compile command")
	}
}
