package cli

import (
	"context"

	"github.com/koltyakov/tunctl/internal/tui"
)

func runDashboard(ctx context.Context) int {
	return tui.Run(ctx)
}
