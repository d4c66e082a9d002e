package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"codearena/internal/cli/command"
	"codearena/internal/cli/config"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/repl"
	"codearena/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override judge base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 2m)")
	as := flag.String("as", "", "Contestant id to submit as")
	statePath := flag.String("state", "", "Override identity state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	identity, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load identity failed: %v\n", err)
		os.Exit(1)
	}
	if *as != "" {
		identity.ContestantID = *as
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return identity.ContestantID
	})

	commands := command.Registry()
	terminal, err := repl.NewTerminal(cfg.HistoryFile, commands)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open terminal failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = terminal.Close()
	}()

	session := repl.New(client, commands, &identity, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON, terminal, terminal.Stdout())
	session.Run(context.Background())
}
