package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codearena/internal/cli/command"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/pack"
	"codearena/internal/cli/state"
	pkgerrors "codearena/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "codearena> "

// LineReader is the terminal surface the session reads from.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	identity   *state.Identity
	statePath  string
	prettyJSON bool
	in         LineReader
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, identity *state.Identity, statePath string, prettyJSON bool, in LineReader, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		identity:   identity,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		in:         in,
		out:        out,
	}
}

// NewTerminal opens a readline terminal with history and completion for commands.
func NewTerminal(historyFile string, commands map[string]command.Command) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	byService := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, cmd := range commands {
		if _, ok := byService[cmd.Service]; !ok {
			order = append(order, cmd.Service)
		}
		byService[cmd.Service] = append(byService[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("as")),
		readline.PcItem("show", readline.PcItem("identity"), readline.PcItem("config")),
	}
	for _, service := range order {
		items = append(items, readline.PcItem(service, byService[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Session) Run(ctx context.Context) {
	for ctx.Err() == nil {
		s.in.SetPrompt(defaultPrompt)
		line, err := s.in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if quit := s.Handle(ctx, line); quit {
			return
		}
	}
}

// Handle executes one input line and reports whether the session should end.
func (s *Session) Handle(ctx context.Context, line string) bool {
	handled, quit := s.handleSystemCommand(line)
	if handled {
		return quit
	}
	if err := s.handleCommand(ctx, line); err != nil {
		s.printLine("error: %v", err)
	}
	return false
}

func (s *Session) handleSystemCommand(line string) (bool, bool) {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, true
	case "help":
		s.printHelp()
		return true, false
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true, false
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, false
	}
	return false, false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|as")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8085")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 2m")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "as":
		if len(parts) < 2 {
			s.printLine("usage: set as <contestant_id>")
			return
		}
		s.identity.ContestantID = parts[1]
		s.saveIdentity()
		s.printLine("submitting as %s", parts[1])
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "identity":
		contestant := s.identity.ContestantID
		if contestant == "" {
			contestant = "<anonymous>"
		}
		s.printLine("contestant: %s", contestant)
		if s.identity.LastSubmissionID != "" {
			s.printLine("last submission: %s", s.identity.LastSubmissionID)
		}
	case "config":
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show identity|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)

	s.applyParamShortcuts(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.Local() {
		return s.runLocal(cmd, params)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.rememberSubmission(cmd, resp.Body)
	return nil
}

func (s *Session) applyParamShortcuts(cmd command.Command, params command.Params) {
	if cmd.Service == "judge" && cmd.Action == "submit" {
		if params.Get("source_file") != "" && params.Get("code") == "" {
			params.Set("code", "_file_")
		}
	}
	if cmd.Service == "judge" && cmd.Action == "status" && params.Get("id") == "" && s.identity.LastSubmissionID != "" {
		params.Set("id", s.identity.LastSubmissionID)
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		s.in.SetPrompt(field.Prompt + ": ")
		value, err := s.in.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) runLocal(cmd command.Command, params command.Params) error {
	switch cmd.Service + " " + cmd.Action {
	case "pack build":
		n, err := pack.Build(params.Get("dir"), params.Get("out"))
		if err != nil {
			return err
		}
		s.printLine("packed %d cases into %s", n, params.Get("out"))
	case "pack inspect":
		cases, err := pack.Inspect(params.Get("file"))
		if err != nil {
			return err
		}
		for _, c := range cases {
			s.printLine("case %03d: input %d bytes, expected %d bytes", c.Index, c.InputBytes, c.OutputBytes)
		}
	default:
		return fmt.Errorf("unknown local command: %s %s", cmd.Service, cmd.Action)
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) rememberSubmission(cmd command.Command, body []byte) {
	if cmd.Service != "judge" || cmd.Action != "submit" {
		return
	}
	var resp struct {
		Code pkgerrors.ErrorCode `json:"code"`
		Data struct {
			SubmissionID string `json:"submission_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code != pkgerrors.Success {
		return
	}
	if resp.Data.SubmissionID != "" {
		s.identity.LastSubmissionID = resp.Data.SubmissionID
		s.saveIdentity()
	}
}

func (s *Session) saveIdentity() {
	if s.statePath == "" {
		return
	}
	if err := state.Save(s.statePath, *s.identity); err != nil {
		s.printLine("save identity failed: %v", err)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|as | show identity|config")
	s.printLine("examples:")
	s.printLine("  set as alice")
	s.printLine("  judge submit problem=two-sum lang=cpp file=./main.cpp contest=weekly-1")
	s.printLine("  judge status")
	s.printLine("  contest ranking id=weekly-1")
	s.printLine("  pack build dir=./cases out=two-sum.tar.zst")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
