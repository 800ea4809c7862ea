package taskstore

import "net/url"

// domainOf extracts a normalized host from a task URL, grounded on the
// teacher's internal/queue/scheduler.go extractDomain helper.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
