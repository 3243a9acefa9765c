package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/store"
)

func runZones(ctx context.Context, args []string) int {
	// Subcommand form: `tunctl zones default <zone>`.
	if len(args) > 0 && args[0] == "default" {
		return runZonesDefault(args[1:])
	}

	fs := flag.NewFlagSet("zones", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	zones, err := e.RefreshZones(ctx, *account)
	if err != nil {
		return fail(nil, err)
	}

	cfg, err := store.LoadConfig()
	if err != nil {
		return fail(nil, err)
	}
	acct := cfg.Account(*account)
	for _, z := range zones {
		marker := " "
		if z.ID == acct.DefaultZoneID {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, z.Name)
	}
	return 0
}

func runZonesDefault(args []string) int {
	fs := flag.NewFlagSet("zones default", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunctl zones default <zone> [-a account]")
		return 1
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	if err := e.SelectDefaultZone(*account, fs.Arg(0)); err != nil {
		return fail(nil, err)
	}
	fmt.Printf("Default zone set to %s\n", fs.Arg(0))
	return 0
}
