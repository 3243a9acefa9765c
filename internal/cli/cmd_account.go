package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/store"
)

func runAccount(ctx context.Context, args []string) int {
	if len(args) == 0 {
		return accountList()
	}
	switch args[0] {
	case "list":
		return accountList()
	case "add":
		return runInit(ctx, args[1:])
	case "select":
		return accountSelect(args[1:])
	case "remove":
		return accountRemove(ctx, args[1:])
	default:
		fmt.Fprintln(os.Stderr, "usage: tunctl account [list|add|select <name>|remove <name> [-y]]")
		return 1
	}
}

func accountList() int {
	cfg, err := store.LoadConfig()
	if err != nil {
		return fail(nil, err)
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return fail(nil, err)
	}
	for _, acct := range cfg.Accounts {
		marker := " "
		if acct.Name == cfg.DefaultAccount {
			marker = "*"
		}
		fmt.Printf("%s %s (%d tunnel(s), default zone %s)\n",
			marker, acct.Name, len(ts.ForAccount(acct.Name)), acct.DefaultZoneName)
	}
	return 0
}

func accountSelect(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunctl account select <name>")
		return 1
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		return fail(nil, err)
	}
	if err := cfg.SelectAccount(args[0]); err != nil {
		return fail(nil, err)
	}
	if err := store.SaveConfig(cfg); err != nil {
		return fail(nil, err)
	}
	fmt.Printf("Default account is now %q\n", args[0])
	return 0
}

func accountRemove(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("account remove", flag.ExitOnError)
	yes := fs.Bool("y", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunctl account remove <name> [-y]")
		return 1
	}
	name := fs.Arg(0)

	ts, err := store.LoadTunnels()
	if err != nil {
		return fail(nil, err)
	}
	owned := len(ts.ForAccount(name))

	if !*yes && isInteractiveInput() {
		reader := bufio.NewReader(os.Stdin)
		label := fmt.Sprintf("Remove account %q and the local records of its %d tunnel(s)? Remote tunnels stay.", name, owned)
		if !confirm(reader, label) {
			fmt.Println("Cancelled.")
			return 0
		}
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	if err := e.RemoveAccount(ctx, name); err != nil {
		return fail(nil, err)
	}
	fmt.Printf("Removed account %q\n", name)
	return 0
}
