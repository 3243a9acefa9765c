package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koltyakov/tunctl/internal/selfupdate"
	"github.com/koltyakov/tunctl/internal/store"
	"github.com/koltyakov/tunctl/internal/versionutil"
)

const updateCheckInterval = 24 * time.Hour

// updateCheckCache is the persisted result of the last release lookup, so
// routine commands hit GitHub at most once a day.
type updateCheckCache struct {
	CheckedAt time.Time `json:"checked_at"`
	Latest    string    `json:"latest"`
}

func updateCheckPath() string {
	return filepath.Join(store.Dir(), "update-check.json")
}

// maybeUpdateHint prints a one-line upgrade hint when a newer release is
// known. Network failures and dev builds stay silent; a hint must never get
// in the way of the command that was actually run.
func maybeUpdateHint(ctx context.Context) {
	if Version == "" || Version == "dev" || strings.HasSuffix(Version, "-dev") {
		return
	}

	var cache updateCheckCache
	if raw, err := os.ReadFile(updateCheckPath()); err == nil {
		_ = json.Unmarshal(raw, &cache)
	}

	if time.Since(cache.CheckedAt) >= updateCheckInterval {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		cache.CheckedAt = time.Now()
		cache.Latest = ""
		if rel, err := selfupdate.Check(ctx, Version); err == nil && rel != nil {
			cache.Latest = rel.TagName
		} else if err != nil {
			return
		}
		if raw, err := json.Marshal(cache); err == nil {
			_ = os.WriteFile(updateCheckPath(), raw, 0o600)
		}
	}

	if cache.Latest == "" {
		return
	}
	if !selfupdate.IsNewer(strings.TrimPrefix(Version, "v"), strings.TrimPrefix(cache.Latest, "v")) {
		return
	}
	fmt.Fprintf(os.Stderr, "\nA new version is available: %s (current %s). Run: tunctl update\n",
		versionutil.EnsureVPrefix(cache.Latest), versionutil.EnsureVPrefix(Version))
}
