package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/engine"
	"github.com/koltyakov/tunctl/internal/history"
	"github.com/koltyakov/tunctl/internal/log"
	"github.com/koltyakov/tunctl/internal/poller"
	"github.com/koltyakov/tunctl/internal/probe"
	"github.com/koltyakov/tunctl/internal/service"
	"github.com/koltyakov/tunctl/internal/store"
)

// Run starts the dashboard and blocks until the user quits. Logs are
// discarded while the alternate screen owns the terminal; errors surface
// through the status line instead.
func Run(ctx context.Context) int {
	if _, err := store.LoadConfig(); err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			fmt.Fprintln(os.Stderr, "no accounts configured, run: tunctl init")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return 1
	}

	svc, err := service.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	hist, err := history.Open(store.HistoryPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer hist.Close()

	logger := log.NewWriter(io.Discard, os.Getenv("TUNCTL_LOG_LEVEL"))
	prober := probe.New()
	eng := engine.New(logger, svc, hist)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := poller.New(logger, svc, prober, eng.Busy, hist)
	go p.Run(ctx)

	model := NewModel(ctx, eng, prober, hist, p.Snapshots())
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
