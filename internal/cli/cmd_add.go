package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/engine"
)

func runAdd(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	zone := fs.String("z", "", "zone name (default: account's default zone)")
	start := fs.Bool("s", false, "start the tunnel after adding")
	autoStart := fs.Bool("auto-start", false, "start the tunnel at login")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: tunctl add <name> <host:port|url> [-z zone] [-s] [-auto-start]")
		return 1
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	rep, err := e.Add(ctx, engine.AddRequest{
		Name:      fs.Arg(0),
		Account:   *account,
		Target:    fs.Arg(1),
		Zone:      *zone,
		AutoStart: *autoStart,
		Start:     *start,
	})
	if err != nil {
		return fail(rep, err)
	}

	tun := rep.Tunnel
	fmt.Printf("Added %s -> %s\n", tun.PublicURL(), tun.Target)
	if *start {
		fmt.Println("Tunnel is starting; check with `tunctl list`")
	} else {
		fmt.Printf("Start it with: tunctl start %s\n", tun.Name)
	}
	return 0
}
