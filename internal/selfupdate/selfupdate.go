// Package selfupdate checks for newer tunctl releases on GitHub and
// replaces the running binary in-place.
package selfupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"
)

const (
	// GitHubRepo is the owner/repo path used to query the GitHub API.
	GitHubRepo = "koltyakov/tunctl"
	// releasesURL is the GitHub API endpoint for the latest release.
	releasesURL      = "https://api.github.com/repos/" + GitHubRepo + "/releases/latest"
	maxReleaseJSON   = 2 << 20
	maxDownloadBytes = 100 << 20
)

var releaseHTTPClient = &http.Client{Timeout: 20 * time.Second}
var downloadHTTPClient = &http.Client{Timeout: 5 * time.Minute}

// Release holds the subset of GitHub release metadata we care about.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a single downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result describes what happened during an update.
type Result struct {
	CurrentVersion string
	LatestVersion  string
	Updated        bool
	AssetName      string
}

// Check queries GitHub for the latest release. Returns nil when the current
// version is already up to date or is a dev build.
func Check(ctx context.Context, currentVersion string) (*Release, error) {
	rel, err := fetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	latest := strings.TrimPrefix(rel.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")
	if current == latest || current == "dev" {
		return nil, nil
	}
	if !isNewer(current, latest) {
		return nil, nil
	}
	return rel, nil
}

// Apply downloads the platform asset from the release and replaces the
// current binary. The caller should have already confirmed the user wants
// to proceed.
func Apply(ctx context.Context, rel *Release) (*Result, error) {
	assetName, err := assetNameForPlatform()
	if err != nil {
		return nil, err
	}

	var dlURL string
	for _, a := range rel.Assets {
		if a.Name == assetName {
			dlURL = a.BrowserDownloadURL
			break
		}
	}
	if dlURL == "" {
		return nil, fmt.Errorf("no release asset %q found for %s/%s", assetName, runtime.GOOS, runtime.GOARCH)
	}

	data, err := download(ctx, dlURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", assetName, err)
	}
	binary, err := extractBinary(assetName, data)
	if err != nil {
		return nil, fmt.Errorf("extract binary: %w", err)
	}
	if err := replaceBinary(binary); err != nil {
		return nil, fmt.Errorf("replace binary: %w", err)
	}

	return &Result{
		LatestVersion: strings.TrimPrefix(rel.TagName, "v"),
		Updated:       true,
		AssetName:     assetName,
	}, nil
}

func fetchLatestRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releasesURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := releaseHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReleaseJSON)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release JSON: %w", err)
	}
	return &rel, nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := downloadHTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

// assetNameForPlatform returns the archive file name matching the
// goreleaser naming template for the current OS/arch.
func assetNameForPlatform() (string, error) {
	var osName string
	switch runtime.GOOS {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	var archName string
	switch runtime.GOARCH {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}
	return fmt.Sprintf("tunctl_%s_%s.tar.gz", osName, archName), nil
}
