package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/koltyakov/tunctl/internal/domain"
	"github.com/koltyakov/tunctl/internal/store"
)

func runLogs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	account := fs.String("a", "", "account name (default: default account)")
	lines := fs.Int("n", 50, "number of trailing lines to show")
	follow := fs.Bool("f", false, "keep following the log")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tunctl logs <name> [-n lines] [-f] [-a account]")
		return 1
	}

	cfg, err := store.LoadConfig()
	if err != nil {
		return fail(nil, err)
	}
	acct := cfg.Account(*account)
	if acct == nil {
		return fail(nil, fmt.Errorf("account %q: %w", *account, domain.ErrNotFound))
	}
	ts, err := store.LoadTunnels()
	if err != nil {
		return fail(nil, err)
	}
	tun := ts.Find(fs.Arg(0), acct.Name)
	if tun == nil {
		return fail(nil, fmt.Errorf("tunnel %q: %w", fs.Arg(0), domain.ErrNotFound))
	}

	path := store.LogPath(tun)
	offset, err := printTail(path, *lines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No logs yet; the tunnel has not been started.")
			if !*follow {
				return 0
			}
			offset = 0
		} else {
			return fail(nil, err)
		}
	}
	if !*follow {
		return 0
	}
	return followLog(ctx, path, offset)
}

// printTail writes the last n lines of the file to stdout and returns the
// end-of-file offset for follow mode.
func printTail(path string, n int) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := strings.TrimRight(string(raw), "\n")
	if content != "" {
		all := strings.Split(content, "\n")
		if len(all) > n {
			all = all[len(all)-n:]
		}
		fmt.Println(strings.Join(all, "\n"))
	}
	return int64(len(raw)), nil
}

// followLog polls the file for growth. Truncation (log rotation) resets the
// offset to the new end.
func followLog(ctx context.Context, path string, offset int64) int {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		size := info.Size()
		if size < offset {
			offset = size
			continue
		}
		if size == offset {
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		if _, err := f.Seek(offset, io.SeekStart); err == nil {
			n, _ := io.Copy(os.Stdout, f)
			offset += n
		}
		_ = f.Close()
	}
}
