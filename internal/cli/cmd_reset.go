package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/service"
	"github.com/koltyakov/tunctl/internal/store"
)

// runReset removes the entire local state directory. Services are stopped
// and uninstalled first when the store is still readable; remote tunnels
// and DNS records are left as-is.
func runReset(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("y", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if !*yes {
		if !isInteractiveInput() {
			fmt.Fprintln(os.Stderr, "error: reset requires -y in non-interactive mode")
			return 1
		}
		reader := bufio.NewReader(os.Stdin)
		if !confirm(reader, fmt.Sprintf("Remove ALL local tunctl state under %s? Remote tunnels stay.", store.Dir())) {
			fmt.Println("Cancelled.")
			return 0
		}
	}

	// Best effort service cleanup; a corrupt store must not block the reset.
	ts, err := store.LoadTunnels()
	if err == nil {
		if svc, svcErr := service.New(); svcErr == nil {
			for i := range ts.Tunnels {
				_ = svc.Stop(ctx, &ts.Tunnels[i])
				_ = svc.Remove(ctx, &ts.Tunnels[i])
			}
		}
	} else if !errors.Is(err, domain.ErrStoreCorrupt) && !errors.Is(err, domain.ErrNotInitialized) {
		return fail(nil, err)
	}

	if err := os.RemoveAll(store.Dir()); err != nil {
		return fail(nil, err)
	}
	fmt.Println("Local state removed. Run `tunctl init` to start over.")
	return 0
}
