package probe

import (
	"sort"
	"strconv"
	"strings"

	"github.com/koltyakov/tunctl/internal/domain"
)

// ParseMetrics extracts the tunnel counters from cloudflared's Prometheus
// text exposition. Unknown metrics and malformed lines are skipped; the
// daemon's exposition format has drifted across releases and a partial
// snapshot beats none.
func ParseMetrics(text string) domain.MetricsSnapshot {
	var snap domain.MetricsSnapshot
	codes := map[int]uint64{}
	var locations []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, labels, value, ok := parseLine(line)
		if !ok {
			continue
		}

		switch name {
		case "cloudflared_tunnel_total_requests":
			snap.TotalRequests = uint64(value)
		case "cloudflared_tunnel_request_errors":
			snap.RequestErrors = uint64(value)
		case "cloudflared_tunnel_ha_connections":
			snap.EdgeConnections = uint64(value)
		case "cloudflared_tunnel_concurrent_requests_per_tunnel":
			snap.ConcurrentRequests = uint64(value)
		case "cloudflared_tunnel_response_by_code":
			if code, err := strconv.Atoi(labels["status_code"]); err == nil {
				codes[code] += uint64(value)
			}
		case "cloudflared_tunnel_server_locations":
			if loc := labels["edge_location"]; loc != "" && value >= 1 {
				locations = append(locations, loc)
			}
		}
	}

	if len(codes) > 0 {
		snap.ResponseCodes = codes
	}
	sort.Strings(locations)
	snap.EdgeLocations = locations
	return snap
}

// parseLine splits one exposition line into metric name, label map, and
// value.
func parseLine(line string) (name string, labels map[string]string, value float64, ok bool) {
	// Separate "name{labels}" from the value.
	sp := strings.LastIndexByte(line, ' ')
	if sp < 0 {
		return "", nil, 0, false
	}
	head, rawValue := line[:sp], strings.TrimSpace(line[sp+1:])
	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return "", nil, 0, false
	}

	labels = map[string]string{}
	if open := strings.IndexByte(head, '{'); open >= 0 {
		end := strings.LastIndexByte(head, '}')
		if end < open {
			return "", nil, 0, false
		}
		for _, pair := range strings.Split(head[open+1:end], ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			labels[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
		}
		head = head[:open]
	}
	return strings.TrimSpace(head), labels, value, true
}
