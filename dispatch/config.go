package dispatch

import (
	"net/url"
	"regexp"
)

var hostPortRE = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+:[0-9]+(,[a-zA-Z0-9_.\-]+:[0-9]+)*$`)

// brokerURIValid accepts either an absolute URI with a non-empty authority
// (e.g. kafka://broker1:9092) or a bare host:port list
// (broker1:9092,broker2:9092), matching the two forms the source config
// layer recognized.
func brokerURIValid(s string) bool {
	if s == "" {
		return false
	}
	if u, err := url.Parse(s); err == nil && u.IsAbs() && u.Host != "" {
		return true
	}
	return hostPortRE.MatchString(s)
}
