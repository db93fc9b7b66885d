package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
	"github.com/desertthunder/vgen/internal/ui"
)

// TUI launches the interactive task tray.
//
// The session file is loaded before the program starts and written back after it exits.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.ExpandPath(r.config.Log.File))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	notifier := ui.NewChannelNotifier(0)
	registry, err := r.loadRegistry(notifier)
	if err != nil {
		return err
	}
	defer r.saveRegistry(registry)

	f, closeFeed, err := r.openFeed(ctx, notifier)
	if err != nil {
		return err
	}
	defer closeFeed()

	var reconciler *publish.Reconciler
	if rec, err := r.reconciler(f, registry, notifier, nil); err != nil {
		r.logger.Warn("publishing disabled", "error", err)
	} else {
		reconciler = rec
	}

	model := ui.NewModel(ctx, ui.Deps{
		Registry:     registry,
		Gateway:      r.gateway,
		Form:         publish.NewForm(),
		Reconciler:   reconciler,
		Feed:         f,
		Notifier:     notifier,
		Policy:       tasks.PollPolicyFromConfig(r.config.Gateway),
		Defaults:     r.defaultRequest(),
		SyncInterval: time.Duration(r.config.Gateway.SyncIntervalSec) * time.Second,
		Open:         r.open,
		Logger:       r.logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
