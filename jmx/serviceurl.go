package jmx

import (
	"fmt"
	"net/url"
	"strings"
)

// ServiceURLPrefix starts every management endpoint URL.
const ServiceURLPrefix = "service:jmx:"

// ServiceURL is a parsed "service:jmx:<protocol>://<host>:<port><path>".
type ServiceURL struct {
	Raw      string
	Protocol string
	Host     string
	Port     string
	Path     string
}

// ParseServiceURL parses one endpoint URL.
func ParseServiceURL(raw string) (ServiceURL, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, ServiceURLPrefix)
	if !ok {
		return ServiceURL{}, fmt.Errorf("jmx: service URL %q must begin with %q", raw, ServiceURLPrefix)
	}
	protocol, _, ok := strings.Cut(rest, "://")
	if !ok || protocol == "" {
		return ServiceURL{}, fmt.Errorf("jmx: service URL %q has no protocol", raw)
	}
	u, err := url.Parse(rest)
	if err != nil {
		return ServiceURL{}, fmt.Errorf("jmx: service URL %q: %w", raw, err)
	}
	return ServiceURL{
		Raw:      raw,
		Protocol: protocol,
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     u.Path,
	}, nil
}

// SplitServiceURLs splits a comma-separated endpoint list, dropping blanks.
func SplitServiceURLs(list string) []string {
	var out []string
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
