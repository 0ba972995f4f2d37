package tools

import "strings"

// Policy decides which registered tools may be called. An empty Allowed list
// permits every tool not in Denied. Names compare case-insensitively.
type Policy struct {
	Allowed []string
	Denied  []string
}

func (p Policy) Permits(name string) bool {
	if nameListed(name, p.Denied) {
		return false
	}
	if len(p.Allowed) == 0 {
		return true
	}
	return nameListed(name, p.Allowed)
}

func nameListed(name string, list []string) bool {
	for _, n := range list {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return true
		}
	}
	return false
}
