package domain

// Introspection is the authentication service's view of an access token.
// It is produced per request and never persisted.
type Introspection struct {
	Active      bool     `json:"active"`
	SubjectID   string   `json:"sub"`
	SessionID   string   `json:"sid"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Authorizes reports whether the caller holds at least one of the policy's
// roles or at least one of its permissions.
func (i *Introspection) Authorizes(p *Policy) bool {
	return intersects(i.Roles, p.Roles) || intersects(i.Permissions, p.Permissions)
}

func intersects(held, required []string) bool {
	if len(held) == 0 || len(required) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(required))
	for _, r := range required {
		set[r] = struct{}{}
	}
	for _, h := range held {
		if _, ok := set[h]; ok {
			return true
		}
	}
	return false
}
