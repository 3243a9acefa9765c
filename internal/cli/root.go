package cli

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the main CLI entry point. It parses args and dispatches to the
// appropriate subcommand, returning a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		return runDashboard(ctx)
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "add":
		return runAdd(ctx, args[1:])
	case "start":
		return runLifecycle(ctx, "start", args[1:])
	case "stop":
		return runLifecycle(ctx, "stop", args[1:])
	case "restart":
		return runLifecycle(ctx, "restart", args[1:])
	case "delete", "rm":
		return runDelete(ctx, args[1:])
	case "edit":
		return runEdit(ctx, args[1:])
	case "list", "ls":
		return runList(ctx, args[1:])
	case "logs":
		return runLogs(ctx, args[1:])
	case "run":
		return runEphemeral(ctx, args[1:])
	case "zones":
		return runZones(ctx, args[1:])
	case "account":
		return runAccount(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "update":
		return runUpdate(ctx, args[1:])
	case "version", "--version", "-v":
		printVersion()
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		printUsage()
		return 1
	}
}
