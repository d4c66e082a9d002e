//go:build linux

package main

import (
	"strings"
	"testing"

	seccomp "github.com/seccomp/libseccomp-golang"
)

func TestDecodeRequestMatchesEngineWireFormat(t *testing.T) {
	raw := `{"RunSpec":{"SubmissionID":"s","RunID":"r","WorkDir":"/work","Cmd":["/work/main"],` +
		`"StdinPath":"/work/input.txt","BindMounts":[{"Source":"/tmp/ws","Target":"/work","ReadOnly":false}],` +
		`"Limits":{"CPUTimeMs":1000,"MemoryBytes":268435456,"StackBytes":67108864,"OutputBytes":16777216,"PIDs":64}},` +
		`"Isolation":{"RootFS":"/srv/rootfs","SeccompProfile":"/etc/seccomp.json"},"EnableSeccomp":true}`
	req, err := decodeRequest(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := validateRequest(req); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.RunSpec.Limits.StackBytes != 64<<20 || req.RunSpec.Limits.OutputBytes != 16<<20 {
		t.Fatalf("limits not decoded: %+v", req.RunSpec.Limits)
	}
	if len(req.RunSpec.BindMounts) != 1 || req.RunSpec.BindMounts[0].Target != "/work" {
		t.Fatalf("mounts not decoded: %+v", req.RunSpec.BindMounts)
	}
	if !req.EnableSeccomp || req.Isolation.RootFS != "/srv/rootfs" {
		t.Fatalf("isolation not decoded: %+v", req)
	}
}

func TestValidateRequestRequiresCommand(t *testing.T) {
	if err := validateRequest(initRequest{RunSpec: runSpec{WorkDir: "/work"}}); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestParseSeccompAction(t *testing.T) {
	if action, err := parseSeccompAction("scmp_act_allow"); err != nil || action != seccomp.ActAllow {
		t.Fatalf("expected allow, got %v %v", action, err)
	}
	if _, err := parseSeccompAction("SCMP_ACT_TRACE"); err == nil {
		t.Fatalf("expected unsupported action error")
	}
}

func TestBuildEnvFallsBackToPath(t *testing.T) {
	env := buildEnv(nil)
	if len(env) != 1 || !strings.HasPrefix(env[0], "PATH=") {
		t.Fatalf("unexpected default env: %v", env)
	}
	custom := []string{"A=1"}
	if got := buildEnv(custom); len(got) != 1 || got[0] != "A=1" {
		t.Fatalf("custom env not kept: %v", got)
	}
}
