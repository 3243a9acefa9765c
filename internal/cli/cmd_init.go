package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

// runInit adds an account: API token, remote account discovery via the zone
// list, and a default zone. Interactive unless all flags are supplied.
func runInit(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "account name (default: first account is \"default\")")
	token := fs.String("token", "", "Cloudflare API token (prompted when omitted)")
	zoneName := fs.String("zone", "", "default zone name (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := store.LoadConfig()
	if err != nil {
		if !errors.Is(err, domain.ErrNotInitialized) {
			return fail(nil, err)
		}
		cfg = &store.Config{}
	}

	reader := bufio.NewReader(os.Stdin)
	interactive := isInteractiveInput()

	acctName := strings.TrimSpace(*name)
	if acctName == "" {
		if len(cfg.Accounts) == 0 {
			acctName = "default"
		} else if interactive {
			if acctName, err = prompt(reader, "Account name: "); err != nil {
				return fail(nil, err)
			}
		}
		if acctName == "" {
			fmt.Fprintln(os.Stderr, "error: -name is required")
			return 1
		}
	}
	if cfg.Account(acctName) != nil {
		fmt.Fprintf(os.Stderr, "error: account %q already exists\n", acctName)
		return 1
	}

	apiToken := strings.TrimSpace(*token)
	if apiToken == "" {
		if !interactive {
			fmt.Fprintln(os.Stderr, "error: -token is required in non-interactive mode")
			return 1
		}
		if apiToken, err = promptSecret("Cloudflare API token (Zone:DNS:Edit + Account:Tunnel:Edit): "); err != nil {
			return fail(nil, err)
		}
		if apiToken == "" {
			fmt.Fprintln(os.Stderr, "error: token is required")
			return 1
		}
	}

	// The zone list doubles as token verification and account discovery.
	fmt.Println("Verifying token...")
	e, err := newEngine()
	if err != nil {
		return fail(nil, err)
	}
	acct := domain.Account{Name: acctName, APIToken: apiToken}
	if err := cfg.AddAccount(acct); err != nil {
		return fail(nil, err)
	}
	if err := store.SaveConfig(cfg); err != nil {
		return fail(nil, err)
	}

	zones, err := e.RefreshZones(ctx, acctName)
	if err != nil {
		// Keep the store clean on a bad token.
		_ = cfg.RemoveAccountForce(acctName)
		_ = store.SaveConfig(cfg)
		return fail(nil, err)
	}
	if len(zones) == 0 {
		fmt.Fprintln(os.Stderr, "error: the token has no zones; grant it Zone:Read on at least one zone")
		_ = cfg.RemoveAccountForce(acctName)
		_ = store.SaveConfig(cfg)
		return 1
	}

	chosen := strings.TrimSpace(*zoneName)
	if chosen == "" && interactive && len(zones) > 1 {
		fmt.Println("Available zones:")
		for i, z := range zones {
			fmt.Printf("  %d. %s\n", i+1, z.Name)
		}
		answer, err := prompt(reader, fmt.Sprintf("Default zone [1-%d]: ", len(zones)))
		if err != nil {
			return fail(nil, err)
		}
		if idx, err := strconv.Atoi(answer); err == nil && idx >= 1 && idx <= len(zones) {
			chosen = zones[idx-1].Name
		}
	}
	if chosen != "" {
		if err := e.SelectDefaultZone(acctName, chosen); err != nil {
			return fail(nil, err)
		}
	}

	cfg, err = store.LoadConfig()
	if err != nil {
		return fail(nil, err)
	}
	final := cfg.Account(acctName)
	fmt.Printf("Account %q ready: %d zone(s), default zone %s\n",
		acctName, len(final.Zones), final.DefaultZoneName)
	fmt.Println("Next: tunctl add <name> <host:port> -s")
	return 0
}
