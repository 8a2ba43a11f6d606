// Package auth authenticates operator API callers and checks what they may
// touch.
//
// A scope names one API resource and an access level, "<resource>:ro" or
// "<resource>:rw". Write access includes read. The wildcard "*" grants
// everything and is what the single api_key carries.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Resource is an API surface guarded by scopes.
type Resource string

const (
	Inspections Resource = "inspections"
	Mappings    Resource = "mappings"
	Events      Resource = "events"
)

var resources = []Resource{Inspections, Mappings, Events}

// Access is a permission level on a resource. Higher levels include lower ones.
type Access int

const (
	Read Access = iota + 1
	Write
)

func (a Access) String() string {
	switch a {
	case Read:
		return "ro"
	case Write:
		return "rw"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

const wildcard = "*"

var ErrUnknownScope = errors.New("unknown scope")

// Scope is one parsed grant. All is set for the wildcard.
type Scope struct {
	Resource Resource
	Access   Access
	All      bool
}

func (s Scope) String() string {
	if s.All {
		return wildcard
	}
	return string(s.Resource) + ":" + s.Access.String()
}

// ParseScope parses "*" or "<resource>:ro|rw" for a known resource.
func ParseScope(raw string) (Scope, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == wildcard {
		return Scope{All: true}, nil
	}

	name, level, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, fmt.Errorf("%w %q: want <resource>:ro or <resource>:rw", ErrUnknownScope, raw)
	}

	var access Access
	switch level {
	case "ro":
		access = Read
	case "rw":
		access = Write
	default:
		return Scope{}, fmt.Errorf("%w %q: access must be ro or rw", ErrUnknownScope, raw)
	}

	for _, r := range resources {
		if string(r) == name {
			return Scope{Resource: r, Access: access}, nil
		}
	}
	return Scope{}, fmt.Errorf("%w %q: resource must be one of inspections, mappings, events", ErrUnknownScope, raw)
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is the authenticated caller of an API request.
type Principal struct {
	Token  string
	all    bool
	grants map[Resource]Access
}

// Can reports whether p may perform access on resource.
func (p Principal) Can(resource Resource, access Access) bool {
	if p.all {
		return true
	}
	return p.grants[resource] >= access
}

func newPrincipal(token string, scopes []Scope) Principal {
	p := Principal{Token: token, grants: make(map[Resource]Access, len(scopes))}
	for _, s := range scopes {
		if s.All {
			p.all = true
			continue
		}
		if s.Access > p.grants[s.Resource] {
			p.grants[s.Resource] = s.Access
		}
	}
	return p
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

// Authenticator holds the configured credentials with their scopes parsed.
type Authenticator struct {
	apiKey string
	tokens []Principal
}

// NewAuthenticator parses every token's scopes. An empty token, an unknown
// scope or a token configured twice is an error.
func NewAuthenticator(apiKey string, tokens []TokenConfig) (*Authenticator, error) {
	a := &Authenticator{apiKey: apiKey, tokens: make([]Principal, 0, len(tokens))}
	seen := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if t.Token == "" {
			return nil, fmt.Errorf("tokens[%d]: token is empty", i)
		}
		if prev, dup := seen[t.Token]; dup || t.Token == apiKey {
			if !dup {
				return nil, fmt.Errorf("tokens[%d]: token duplicates api_key", i)
			}
			return nil, fmt.Errorf("tokens[%d]: token duplicates tokens[%d]", i, prev)
		}
		seen[t.Token] = i

		if len(t.Scopes) == 0 {
			return nil, fmt.Errorf("tokens[%d]: no scopes", i)
		}
		scopes := make([]Scope, 0, len(t.Scopes))
		for j, raw := range t.Scopes {
			s, err := ParseScope(raw)
			if err != nil {
				return nil, fmt.Errorf("tokens[%d].scopes[%d]: %w", i, j, err)
			}
			scopes = append(scopes, s)
		}
		a.tokens = append(a.tokens, newPrincipal(t.Token, scopes))
	}
	return a, nil
}

// Authenticate matches a presented bearer token against the api_key and the
// scoped tokens.
func (a *Authenticator) Authenticate(presented string) (Principal, bool) {
	if constantTimeEqual(presented, a.apiKey) {
		return newPrincipal(presented, []Scope{{All: true}}), true
	}
	for _, p := range a.tokens {
		if constantTimeEqual(presented, p.Token) {
			return p, true
		}
	}
	return Principal{}, false
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
