package main

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"
	"github.com/lox/roulette/internal/tui"
)

// WatchCmd streams table events into a terminal UI that also accepts
// bet, spin and claim commands.
type WatchCmd struct {
	ClientFlags `embed:""`
	LogFile     string `help:"Write logs to this file while the UI is running"`
}

func (c *WatchCmd) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logging to stderr would tear the alt screen.
	var out io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := tea.LogToFile(c.LogFile, "roulette")
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	s, err := c.connect(ctx, out)
	if err != nil {
		return err
	}
	defer s.client.Disconnect()

	model := tui.NewTUIModel(s.logger)
	bridge := tui.NewBridge(ctx, s.client, model, quartz.NewReal())
	if err := s.client.Subscribe(ctx); err != nil {
		return err
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	bridge.SetProgram(program)
	bridge.Start()

	go func() {
		select {
		case <-s.client.Done():
			model.AddLogEntry(tui.ErrorStyle.Render("Disconnected from server"))
			program.Send(tui.RefreshMsg{})
		case <-ctx.Done():
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
