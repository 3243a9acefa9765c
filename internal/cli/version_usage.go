package cli

import (
	"fmt"
	"os/exec"
	"strings"
)

func printUsage() {
	fmt.Println(`tunctl - persistent Cloudflare Tunnels for local services

Map stable public hostnames to local ports, supervised by your OS
service manager so tunnels survive reboots.

Usage:
  tunctl                                Open the dashboard
  tunctl init                           Add an account (API token + default zone)
  tunctl add <name> <target>            Register a tunnel (host:port or URL)
                                        <name> is a label or a full hostname
                                        under one of your zones
      -z zone      zone name (default: account's default zone)
      -s           start immediately
      -auto-start  start at login
  tunctl start|stop|restart <name>      Drive the tunnel service
  tunctl edit <name> [-target T] [-z Z] Change target or zone
  tunctl delete <name> [-y]             Tear down remote + local state
  tunctl list                           Show all tunnels with live status
  tunctl logs <name> [-n N] [-f]        Show daemon logs
  tunctl run [name] <target> [--keep]   Run a foreground tunnel, torn down on exit
  tunctl zones [default <zone>]         List zones / set the default zone
  tunctl account [list|select|remove]   Manage accounts
  tunctl reset -y                       Remove all local state
  tunctl update [--check]               Self-update to the latest release
  tunctl version                        Print version

Every tunnel command accepts -a <account> to target a non-default account.

Quick Start:
  1. tunctl init                        # save API token, pick a zone
  2. tunctl add myapp localhost:3000 -s # https://myapp.<zone> is live
  3. tunctl                             # watch it on the dashboard

Environment Variables:
  TUNCTL_HOME        State directory (default: ~/.tunctl)
  TUNCTL_LOG_LEVEL   Log level: debug|info|warn|error (default: info)

For detailed documentation, see: https://github.com/koltyakov/tunctl`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func init() {
	if Version == "dev" {
		if desc, err := exec.Command("git", "describe", "--tags", "--always").Output(); err == nil {
			if v := strings.TrimSpace(string(desc)); v != "" {
				Version = v + "-dev"
			}
		}
	}
	// Normalize: ensure non-dev versions start with "v" (GoReleaser
	// template {{.Version}} strips the prefix while git-describe keeps it).
	if Version != "dev" && !strings.HasPrefix(Version, "v") {
		Version = "v" + Version
	}
}

func printVersion() {
	fmt.Println("tunctl", Version)
}
