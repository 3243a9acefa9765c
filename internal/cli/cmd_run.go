package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/engine"
)

// randomTunnelName generates a throwaway hostname label for an unnamed
// ephemeral run.
func randomTunnelName() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return "tunctl-" + string(buf)
}

func runEphemeral(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	zone := fs.String("z", "", "zone name (default: account's default zone)")
	keep := fs.Bool("keep", false, "keep the tunnel as a persistent record on exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var name, target string
	switch fs.NArg() {
	case 1:
		name, target = randomTunnelName(), fs.Arg(0)
	case 2:
		name, target = fs.Arg(0), fs.Arg(1)
	default:
		fmt.Fprintln(os.Stderr, "usage: tunctl run [name] <host:port|url> [-z zone] [--keep]")
		return 1
	}

	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}

	fmt.Printf("Starting foreground tunnel %s; Ctrl-C tears it down.\n", name)
	rep, err := e.RunEphemeral(ctx, engine.RunRequest{
		Name:    name,
		Account: *account,
		Target:  target,
		Zone:    *zone,
		Keep:    *keep,
	}, os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(rep, err)
	}

	if *keep {
		fmt.Printf("Kept %s; start it as a service with: tunctl start %s\n",
			rep.Tunnel.Hostname, rep.Tunnel.Name)
	} else {
		fmt.Println("Tunnel torn down.")
	}
	return 0
}
