package domain

import "strings"

// ResourceServer is an upstream registered behind the gateway under a path prefix.
type ResourceServer struct {
	ID           string
	PathPrefix   string
	UpstreamHost string
}

// StripPrefix rewrites "{prefix}/{segment}" to "/{segment}".
func (rs ResourceServer) StripPrefix(path string) string {
	prefix := strings.TrimRight(rs.PathPrefix, "/")
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}
