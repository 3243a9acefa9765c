// Package netutil provides shared host and target normalization helpers.
package netutil

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// NormalizeTarget validates a tunnel target and returns it as a URL suitable
// for a cloudflared ingress rule. Bare host:port values get an http scheme;
// explicit http/https URLs pass through unchanged.
func NormalizeTarget(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", errors.New("target is required")
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return v, nil
	}
	host, port, err := net.SplitHostPort(v)
	if err != nil {
		return "", errors.New("target must be host:port or an http(s) URL")
	}
	if host == "" {
		host = "localhost"
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", errors.New("target port must be between 1 and 65535")
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// NormalizeHost lower-cases and strips ports/trailing dots from host values.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}

	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		host = h
	} else if strings.Count(host, ":") == 1 {
		left, right, ok := strings.Cut(host, ":")
		if ok && isDigits(right) {
			host = left
		}
	}

	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}

// SubdomainLabel reduces a requested name to the label under a zone: a full
// hostname like "app.example.com" under zone "example.com" becomes "app";
// anything else is returned trimmed as-is.
func SubdomainLabel(name, zone string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if suffix := "." + strings.ToLower(zone); strings.HasSuffix(name, suffix) {
		return strings.TrimSuffix(name, suffix)
	}
	return name
}

// ValidSubdomainLabel reports whether v is usable as a single DNS label.
func ValidSubdomainLabel(v string) bool {
	if v == "" || len(v) > 63 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' && i > 0 && i < len(v)-1:
		default:
			return false
		}
	}
	return true
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
