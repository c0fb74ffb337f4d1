package gateway

import (
	"path"
	"strings"
	"sync/atomic"
)

// AllowList matches request paths that skip API key admission. It is safe
// for concurrent use and can be replaced while serving.
type AllowList struct {
	patterns atomic.Pointer[[]allowPattern]
}

type allowPattern struct {
	raw    string
	value  string
	prefix bool
}

// NewAllowList compiles patterns. A trailing "/**" matches the prefix and
// everything below it; any other pattern matches exactly.
func NewAllowList(patterns []string) *AllowList {
	a := &AllowList{}
	a.Set(patterns)
	return a
}

// Set atomically replaces the patterns.
func (a *AllowList) Set(patterns []string) {
	compiled := make([]allowPattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if base, ok := strings.CutSuffix(p, "/**"); ok {
			compiled = append(compiled, allowPattern{raw: p, value: cleanPath(base), prefix: true})
			continue
		}
		compiled = append(compiled, allowPattern{raw: p, value: cleanPath(p)})
	}
	a.patterns.Store(&compiled)
}

// Patterns returns the configured patterns.
func (a *AllowList) Patterns() []string {
	ps := *a.patterns.Load()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}

// Allowed reports whether p is allow-listed. The path is cleaned first, so
// dot segments cannot climb out of an allowed prefix.
func (a *AllowList) Allowed(p string) bool {
	p = cleanPath(p)
	for _, pat := range *a.patterns.Load() {
		if !pat.prefix {
			if p == pat.value {
				return true
			}
			continue
		}
		if pat.value == "/" || p == pat.value || strings.HasPrefix(p, pat.value+"/") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
