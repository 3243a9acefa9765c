package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/engine"
)

// runLifecycle handles start, stop, and restart, which share a shape:
// one tunnel name argument plus the account flag.
func runLifecycle(ctx context.Context, verb string, args []string) int {
	fs := flag.NewFlagSet(verb, flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: tunctl %s <name> [-a account]\n", verb)
		return 1
	}
	name := fs.Arg(0)

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}

	var rep *engine.Report
	switch verb {
	case "start":
		rep, err = e.Start(ctx, name, *account)
	case "stop":
		rep, err = e.Stop(ctx, name, *account)
	case "restart":
		rep, err = e.Restart(ctx, name, *account)
	}
	if err != nil {
		return fail(rep, err)
	}

	switch verb {
	case "stop":
		fmt.Printf("Stopped %s (hostname %s is kept)\n", name, rep.Tunnel.Hostname)
	default:
		fmt.Printf("%s is up: %s -> %s\n", name, rep.Tunnel.PublicURL(), rep.Tunnel.Target)
	}
	return 0
}

func runDelete(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	yes := fs.Bool("y", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunctl delete <name> [-a account] [-y]")
		return 1
	}
	name := fs.Arg(0)

	if !*yes && isInteractiveInput() {
		reader := bufio.NewReader(os.Stdin)
		if !confirm(reader, fmt.Sprintf("Delete tunnel %q and its DNS record?", name)) {
			fmt.Println("Cancelled.")
			return 0
		}
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	rep, err := e.Delete(ctx, name, *account)
	if err != nil {
		fmt.Fprintln(os.Stderr, "the record was kept; re-run delete to retry the failed step")
		return fail(rep, err)
	}
	fmt.Printf("Deleted %s\n", name)
	return 0
}

func runEdit(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	target := fs.String("target", "", "new local target (host:port or URL)")
	zone := fs.String("z", "", "new zone name")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 || (*target == "" && *zone == "") {
		fmt.Fprintln(os.Stderr, "usage: tunctl edit <name> [-target host:port] [-z zone] [-a account]")
		return 1
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	rep, err := e.Edit(ctx, fs.Arg(0), *account, engine.EditRequest{
		Target: *target,
		Zone:   *zone,
	})
	if err != nil {
		return fail(rep, err)
	}
	fmt.Printf("Updated %s: %s -> %s\n", rep.Tunnel.Name, rep.Tunnel.PublicURL(), rep.Tunnel.Target)
	return 0
}
