package selfupdate

import (
	"strconv"
	"strings"
)

// IsNewer reports whether latest is a newer semver than current. Both
// strings should already have the "v" prefix stripped.
func IsNewer(current, latest string) bool {
	return isNewer(current, latest)
}

func isNewer(current, latest string) bool {
	c, cok := parseSemver(current)
	l, lok := parseSemver(latest)
	if !cok || !lok {
		// Unparseable tags (nightly builds, odd release names) fall back
		// to lexical order.
		return latest > current
	}
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

// parseSemver splits "major.minor.patch" into numbers, tolerating
// pre-release and build suffixes on the patch component.
func parseSemver(v string) ([3]int, bool) {
	var out [3]int
	parts := strings.SplitN(v, ".", 3)
	if len(parts) != 3 {
		return out, false
	}
	for i, p := range parts {
		if cut := strings.IndexAny(p, "-+"); cut >= 0 {
			p = p[:cut]
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
