// Package storage probes an S3-compatible endpoint with read-only listing
// calls. It complements the Storage REST check with the S3 protocol surface.
package storage

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// HostRootedNote explains which S3 endpoints the S3 check can reach
const HostRootedNote = "the s3 check needs a host-rooted endpoint (host[:port]); path-based gateways such as Supabase's /storage/v1/s3 cannot be used"

// ParseEndpoint splits an endpoint into the host[:port] MinIO expects and
// whether TLS should be used. A bare host defaults to TLS. Endpoints with a
// path are rejected because MinIO cannot address them.
func ParseEndpoint(raw string) (host string, useSSL bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("S3 endpoint is empty")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid S3 endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "https":
		useSSL = true
	case "http":
		useSSL = false
	default:
		return "", false, fmt.Errorf("invalid S3 endpoint %q: scheme must be http or https", raw)
	}

	if u.Host == "" {
		return "", false, fmt.Errorf("invalid S3 endpoint %q: missing host", raw)
	}
	if u.Path != "" && u.Path != "/" {
		return "", false, fmt.Errorf("invalid S3 endpoint %q: path %q is not supported, %s", raw, u.Path, HostRootedNote)
	}

	return u.Host, useSSL, nil
}

var (
	regionDotPattern    = regexp.MustCompile(`s3\.([a-z]{2}-[a-z]+-\d+)\.amazonaws\.com`)
	regionHyphenPattern = regexp.MustCompile(`s3-([a-z]{2}-[a-z]+-\d+)\.amazonaws\.com`)
)

// ExtractRegionFromEndpoint extracts AWS region from endpoint URL.
// Supports patterns: s3.REGION.amazonaws.com and s3-REGION.amazonaws.com
func ExtractRegionFromEndpoint(endpoint string) string {
	if matches := regionDotPattern.FindStringSubmatch(endpoint); len(matches) > 1 {
		return matches[1]
	}
	if matches := regionHyphenPattern.FindStringSubmatch(endpoint); len(matches) > 1 {
		return matches[1]
	}
	return ""
}
