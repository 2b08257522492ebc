package callback

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL checks that raw is an absolute http or https URL whose host is
// permitted by allowed. An empty list or a "*" entry permits every host.
// Entries match the host itself or any of its subdomains.
func ValidateURL(raw string, allowed []string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	if hostAllowed(host, allowed) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDomainNotAllowed, host)
}

func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "*" {
			return true
		}
		// "*.example.com" and ".example.com" both mean example.com and its subdomains.
		domain := strings.TrimPrefix(strings.TrimPrefix(entry, "*"), ".")
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
