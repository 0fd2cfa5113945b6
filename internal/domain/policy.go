package domain

import "encoding/json"

// Policy maps an HTTP method and URI pattern to an access requirement.
// URIPattern is either an exact path or a regular expression.
type Policy struct {
	URIPattern  string   `json:"uri"`
	Method      string   `json:"method"`
	IsPublic    bool     `json:"is_public"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// UnmarshalJSON accepts both "is_public" and the camel-case "isPublic" that
// some authentication service builds emit.
func (p *Policy) UnmarshalJSON(data []byte) error {
	type plain Policy
	var aux struct {
		plain
		IsPublicCamel *bool `json:"isPublic"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Policy(aux.plain)
	if aux.IsPublicCamel != nil {
		p.IsPublic = *aux.IsPublicCamel
	}
	return nil
}

// Client is an API consumer to which an ordered policy set is scoped.
type Client struct {
	ID       string   `json:"id"`
	Policies []Policy `json:"policies"`
}

// PolicyScope selects what subject identifier policies are looked up by.
type PolicyScope string

const (
	// ScopeResourceServer looks policies up per resource server id.
	ScopeResourceServer PolicyScope = "resource_server"
	// ScopeClient looks policies up through a single shared API client.
	ScopeClient PolicyScope = "client"
)

// Valid reports whether s is a known scope.
func (s PolicyScope) Valid() bool {
	return s == ScopeResourceServer || s == ScopeClient
}
