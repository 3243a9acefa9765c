package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/engine"
	"github.com/koltyakov/tunctl/internal/log"
	"github.com/koltyakov/tunctl/internal/service"
)

// newEngine wires the standard collaborator set for CLI invocations (no
// metric history; that is a dashboard concern).
func newEngine() (*engine.Engine, error) {
	svc, err := service.New()
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Getenv("TUNCTL_LOG_LEVEL"))
	return engine.New(logger, svc, nil), nil
}

// fail prints an operation failure and returns the exit code. When a step
// report is available the failing step is named so the user knows what to
// retry.
func fail(rep *engine.Report, err error) int {
	if rep != nil && rep.FailedStep() != "" {
		fmt.Fprintf(os.Stderr, "error at step %s: %v\n", rep.FailedStep(), err)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	if errors.Is(err, domain.ErrNotInitialized) {
		fmt.Fprintln(os.Stderr, "run `tunctl init` first")
	}
	if errors.Is(err, domain.ErrStoreCorrupt) {
		fmt.Fprintln(os.Stderr, "local state is corrupt; inspect it or run `tunctl reset`")
	}
	return 1
}
