package model

import "strings"

// NormalizeDomain reduces a URL or host to its bare lower-case domain:
// no scheme, no leading "www.", no path, query or port. Hosts cannot hold
// whitespace, so all of it is dropped.
// "https://WWW.Example.com/path:8080" becomes "example.com".
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "//")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimRight(d, ".")
	for strings.HasPrefix(d, "www.") {
		d = strings.TrimPrefix(d, "www.")
	}
	return d
}

// DomainMatches reports whether host is domain or one of its subdomains.
// Both sides are normalized first.
func DomainMatches(host, domain string) bool {
	h, d := NormalizeDomain(host), NormalizeDomain(domain)
	if h == "" || d == "" {
		return false
	}
	return h == d || strings.HasSuffix(h, "."+d)
}
