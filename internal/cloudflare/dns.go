package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/koltyakov/tunctl/internal/domain"
)

// dnsRecord is the wire shape of a DNS record entry.
type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl,omitempty"`
}

// TunnelCNAMETarget returns the content a tunnel's DNS record must point at.
func TunnelCNAMETarget(tunnelID string) string {
	return tunnelID + ".cfargotunnel.com"
}

// EnsureDNSRecord converges the hostname's record onto a proxied CNAME to the
// tunnel. Correct records are left alone, records pointing elsewhere are
// updated in place, and absent ones are created. Safe to call repeatedly.
func (c *Client) EnsureDNSRecord(ctx context.Context, zoneID, hostname, tunnelID string) error {
	existing, err := c.findDNSRecord(ctx, zoneID, hostname)
	if err != nil {
		return err
	}

	want := dnsRecord{
		Type:    "CNAME",
		Name:    hostname,
		Content: TunnelCNAMETarget(tunnelID),
		Proxied: true,
		TTL:     1,
	}

	switch {
	case existing == nil:
		path := fmt.Sprintf("/zones/%s/dns_records", url.PathEscape(zoneID))
		return c.do(ctx, http.MethodPost, path, want, nil)
	case existing.Type == "CNAME" && existing.Content == want.Content && existing.Proxied:
		return nil
	default:
		path := fmt.Sprintf("/zones/%s/dns_records/%s", url.PathEscape(zoneID), url.PathEscape(existing.ID))
		return c.do(ctx, http.MethodPut, path, want, nil)
	}
}

// DeleteDNSRecord removes the hostname's record. An already-absent record is
// success.
func (c *Client) DeleteDNSRecord(ctx context.Context, zoneID, hostname string) error {
	existing, err := c.findDNSRecord(ctx, zoneID, hostname)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing == nil {
		return nil
	}
	path := fmt.Sprintf("/zones/%s/dns_records/%s", url.PathEscape(zoneID), url.PathEscape(existing.ID))
	err = c.do(ctx, http.MethodDelete, path, nil, nil)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// findDNSRecord returns the record for the exact hostname, or nil when the
// zone has none.
func (c *Client) findDNSRecord(ctx context.Context, zoneID, hostname string) (*dnsRecord, error) {
	var records []dnsRecord
	path := fmt.Sprintf("/zones/%s/dns_records?name=%s", url.PathEscape(zoneID), url.QueryEscape(hostname))
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Name == hostname {
			return &records[i], nil
		}
	}
	return nil, nil
}
