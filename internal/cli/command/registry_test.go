package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildSubmitWithSourceFile(t *testing.T) {
	dir := t.TempDir()
	sourcePath := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(sourcePath, []byte("int main() {}"), 0o600); err != nil {
		t.Fatalf("write temp source failed: %v", err)
	}

	cmd := Registry()["judge submit"]
	params := Params{}
	params.Set("problem", "two-sum")
	params.Set("lang", "CPP")
	params.Set("file", sourcePath)
	params.Set("code", "_file_")
	params.Set("contest", "weekly-1")

	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/judge/submissions" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	var payload map[string]string
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["code"] != "int main() {}" || payload["language"] != "cpp" || payload["contest_id"] != "weekly-1" || payload["problem_id"] != "two-sum" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload["contestant_id"]; ok {
		t.Fatalf("empty optional fields must be omitted: %v", payload)
	}
}

func TestBuildSubmitRejectsUnknownLanguage(t *testing.T) {
	params := Params{}
	params.Set("problem_id", "p")
	params.Set("language", "fortran")
	params.Set("code", "x")
	if _, err := BuildRequest(Registry()["judge submit"], params); err == nil {
		t.Fatalf("expected unsupported language error")
	}
}

func TestBuildPathParams(t *testing.T) {
	cases := []struct {
		key   string
		param string
		want  string
	}{
		{key: "judge status", param: "submission_id", want: "/api/v1/judge/submissions/s-1"},
		{key: "contest ranking", param: "contest_id", want: "/api/v1/judge/contests/s-1/ranking"},
		{key: "contest phase", param: "id", want: "/api/v1/judge/contests/s-1/phase"},
		{key: "problem get", param: "problem_id", want: "/api/v1/judge/problems/s-1"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			params := Params{}
			params.Set(tc.param, "s-1")
			req, err := BuildRequest(Registry()[tc.key], params)
			if err != nil {
				t.Fatalf("build request failed: %v", err)
			}
			if req.Path != tc.want || req.Body != nil {
				t.Fatalf("unexpected request %+v", req)
			}
		})
	}

	if _, err := BuildRequest(Registry()["judge status"], Params{}); err == nil {
		t.Fatalf("expected missing path parameter error")
	}
}

func TestLocalCommandsDoNotBuildRequests(t *testing.T) {
	cmd := Registry()["pack build"]
	if !cmd.Local() {
		t.Fatalf("pack build should run locally")
	}
	if _, err := BuildRequest(cmd, Params{}); err == nil {
		t.Fatalf("expected error for local command")
	}
}
