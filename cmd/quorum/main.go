// cmd/quorum/main.go
//
// Entry point for the quorum terminal client. Flags pick the session and the
// service; `--replay` runs a recorded meeting instead of connecting.

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/replay"
	"github.com/quorumlabs/quorum/internal/tui"
)

func main() {
	var (
		sessionID  = flag.StringP("session", "s", "", "deliberation session id to join")
		serverURL  = flag.String("server", "", "service base URL (overrides config and QUORUM_SERVER_URL)")
		replayPath = flag.String("replay", "", "play a recorded .jsonl meeting instead of connecting")
		instant    = flag.Bool("instant", false, "with --replay, emit all events immediately")
		record     = flag.String("record", "", "append every received event to this .jsonl file")
	)
	flag.Parse()

	if *sessionID == "" && *replayPath == "" {
		fmt.Fprintln(os.Stderr, "quorum: --session or --replay is required")
		flag.Usage()
		os.Exit(2)
	}
	if *sessionID == "" {
		*sessionID = "replay"
	}

	cwd, err := os.Getwd()
	if err != nil {
		fatal("getting working directory: %v", err)
	}
	if err := config.Init(cwd); err != nil {
		fatal("initializing .quorum directory: %v", err)
	}
	cfg, err := config.New(cwd)
	if err != nil {
		fatal("%v", err)
	}
	if *serverURL != "" {
		cfg.Project.Server.URL = *serverURL
	}

	var opts []tui.AppOption
	if *replayPath != "" {
		rec, err := replay.Load(*replayPath)
		if err != nil {
			fatal("%v", err)
		}
		opts = append(opts, tui.WithReplay(rec, *instant))
	}

	app, err := tui.NewApp(cfg, *sessionID, opts...)
	if err != nil {
		fatal("%v", err)
	}

	if *record != "" && *replayPath == "" {
		recorder, err := replay.NewRecorder(*record, nil)
		if err != nil {
			fatal("%v", err)
		}
		defer recorder.Close()
		app.SetRecorder(recorder)
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatal("running TUI: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "quorum: "+format+"\n", args...)
	os.Exit(1)
}
