// Package policy implements the domain policy of §6: for
// bundle_type==atomic-service, every request URL (initial and
// post-redirect) is checked against (bundle, action, url) -> allow/deny.
// Grounded on the teacher's internal/security/scanner.go NewScanner
// env/OS-based selection idiom, applied here to URL/bundle inputs instead
// of AV-engine selection.
package policy

import (
	"net/url"
	"strings"
	"sync"
)

// BundleType mirrors §6's "1 = atomic-service" contract.
const BundleTypeAtomicService = 1

// Rule is one (bundle, action, host-suffix) allow/deny entry.
type Rule struct {
	Bundle string
	Action string // "download", "upload", or "" for both
	Host   string // suffix match, e.g. "example.com"
	Allow  bool
}

// Evaluator evaluates (bundle, action, url) -> allow/deny for
// atomic-service bundles. Non-atomic-service requests are always allowed;
// this package never re-implements general network reachability.
type Evaluator struct {
	mu    sync.RWMutex
	rules []Rule
	// DefaultAllow governs atomic-service requests matching no rule.
	DefaultAllow bool
}

// New returns an Evaluator with the given rule set.
func New(rules []Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Evaluate returns whether action against rawURL is allowed for bundle at
// the given bundleType.
func (e *Evaluator) Evaluate(bundle string, bundleType int, action, rawURL string) bool {
	if bundleType != BundleTypeAtomicService {
		return true
	}
	host := hostOf(rawURL)

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.rules {
		if r.Bundle != "" && r.Bundle != bundle {
			continue
		}
		if r.Action != "" && r.Action != action {
			continue
		}
		if r.Host != "" && !strings.HasSuffix(host, r.Host) {
			continue
		}
		return r.Allow
	}
	return e.DefaultAllow
}

// SetRules replaces the rule set atomically.
func (e *Evaluator) SetRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
