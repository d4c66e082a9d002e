package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"codearena/internal/judge/model"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "judge",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/judge/submissions",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldString, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile},
				{Name: "contest_id", Aliases: []string{"contest"}, Prompt: "contest_id", Type: FieldString},
				{Name: "contestant_id", Aliases: []string{"as"}, Prompt: "contestant_id", Type: FieldString},
				{Name: "submission_id", Prompt: "submission_id", Type: FieldString},
			},
		},
		{
			Service:      "judge",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/submissions/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "phase",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/contests/:id/phase",
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "contest",
			Action:       "ranking",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/contests/:id/ranking",
			Fields: []Field{
				{Name: "id", Aliases: []string{"contest_id"}, Prompt: "contest_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/judge/problems/:id",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem_id"}, Prompt: "problem_id", Type: FieldString, Required: true},
			},
		},
		{
			Service: "pack",
			Action:  "build",
			Fields: []Field{
				{Name: "dir", Prompt: "directory with NNN.in/NNN.out files", Type: FieldFile, Required: true},
				{Name: "out", Prompt: "output file", Type: FieldFile, Required: true},
			},
		},
		{
			Service: "pack",
			Action:  "inspect",
			Fields: []Field{
				{Name: "file", Prompt: "data pack file", Type: FieldFile, Required: true},
			},
		},
	}

	out := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		out[cmd.Service+" "+cmd.Action] = cmd
	}
	return out
}

// BuildRequest renders an HTTP command into a request.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if cmd.Local() {
		return RequestSpec{}, fmt.Errorf("%s %s runs locally", cmd.Service, cmd.Action)
	}
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, value)
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service == "judge" && cmd.Action == "submit" {
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	lang, err := model.ParseLanguage(params.Get("language"))
	if err != nil {
		return nil, err
	}
	code := params.Get("code")
	if (code == "" || code == "_file_") && params.Get("source_file") != "" {
		code, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if code == "" || code == "_file_" {
		return nil, fmt.Errorf("code is required")
	}

	payload := map[string]string{
		"problem_id": params.Get("problem_id"),
		"language":   string(lang),
		"code":       code,
	}
	for _, optional := range []string{"contest_id", "contestant_id", "submission_id"} {
		if v := params.Get(optional); v != "" {
			payload[optional] = v
		}
	}
	return payload, nil
}
