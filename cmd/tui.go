package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive picker: search, choose a match, fetch it into the cache. The path of
// the fetched track is printed once the picker exits.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, closer, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	engine, err := r.fetchEngine(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(r.output)}
	if r.input != nil {
		opts = append(opts, tea.WithInput(r.input))
	}

	model := ui.NewModel(ctx, r.tidal, engine, int(cmd.Int("limit")))
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	res, err := model.Result()
	if err != nil {
		return err
	}
	if res != nil {
		return r.writePlain("%s\n", res.Path)
	}
	return nil
}
