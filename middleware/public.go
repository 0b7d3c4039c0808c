package middleware

import (
	"net/http"
	"strings"
)

// PublicPaths is the allow-list shared by both gatekeeper filters. Entries are
// exact paths; an entry ending in "/*" matches everything below that prefix.
// OPTIONS requests are always public.
type PublicPaths struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPublicPaths compiles paths into an allow-list.
func NewPublicPaths(paths []string) *PublicPaths {
	p := &PublicPaths{exact: make(map[string]struct{}, len(paths))}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(path, "/*"); ok {
			p.prefixes = append(p.prefixes, prefix+"/")
			// The bare prefix itself is public too.
			p.exact[prefix] = struct{}{}
			continue
		}
		p.exact[path] = struct{}{}
	}
	return p
}

// Allows reports whether r bypasses the gatekeeper.
func (p *PublicPaths) Allows(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if p == nil {
		return false
	}
	return p.Match(r.URL.Path)
}

// Match reports whether path is allow-listed.
func (p *PublicPaths) Match(path string) bool {
	if p == nil {
		return false
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := p.exact[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
