package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/koltyakov/tunctl/internal/log"
	"github.com/koltyakov/tunctl/internal/poller"
	"github.com/koltyakov/tunctl/internal/probe"
	"github.com/koltyakov/tunctl/internal/service"
	"github.com/koltyakov/tunctl/internal/store"
)

func runList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	account := fs.String("a", "", "only show tunnels of this account")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if _, err := store.LoadConfig(); err != nil {
		return fail(nil, err)
	}
	svc, err := service.New()
	if err != nil {
		return fail(nil, err)
	}

	logger := log.New(os.Getenv("TUNCTL_LOG_LEVEL"))
	p := poller.New(logger, svc, probe.New(), nil, nil)
	snapshot := p.PollOnce(ctx, false)

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, " \tNAME\tACCOUNT\tHOSTNAME\tTARGET\tSTATE\tREQS")
	shown := 0
	for _, st := range snapshot {
		if *account != "" && st.Tunnel.Account != *account {
			continue
		}
		shown++
		reqs := "-"
		if st.Metrics != nil {
			reqs = fmt.Sprintf("%d", st.Metrics.TotalRequests)
		}
		state := st.State.String()
		if st.Tunnel.DNSPending {
			state += " (dns pending)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			st.State.Symbol(), st.Tunnel.Name, st.Tunnel.Account,
			st.Tunnel.Hostname, st.Tunnel.Target, state, reqs)
	}
	_ = w.Flush()

	if shown == 0 {
		fmt.Println("No tunnels. Add one with: tunctl add <name> <host:port>")
	}
	maybeUpdateHint(ctx)
	return 0
}
