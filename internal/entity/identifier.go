// Package entity holds the OpenID Federation wire types: entity
// identifiers, entity configurations, subordinate statements, and the
// classification/collection model built on top of them.
package entity

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Identifier is an absolute HTTPS URL uniquely naming a federation
// participant. It is used both as issuer/subject in signed statements and
// as the base for well-known discovery.
type Identifier struct {
	url url.URL
}

// NewIdentifier parses and validates s as an OpenID Federation entity
// identifier: an absolute https URL with no fragment or query string.
func NewIdentifier(s string) (Identifier, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier %q is not a valid URL: %w", s, err)
	}
	if u.Scheme != "https" {
		return Identifier{}, fmt.Errorf("identifier %q: scheme must be https", s)
	}
	if u.Fragment != "" {
		return Identifier{}, fmt.Errorf("identifier %q: must not have a fragment", s)
	}
	if len(u.Query()) > 0 {
		return Identifier{}, fmt.Errorf("identifier %q: must not have a query", s)
	}
	return Identifier{url: *u}, nil
}

// MustNewIdentifier is NewIdentifier for tests and static initializers.
func MustNewIdentifier(s string) Identifier {
	id, err := NewIdentifier(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identifier) String() string { return i.url.String() }

// Equal reports whether i and other name the same entity.
func (i Identifier) Equal(other Identifier) bool {
	return i.url.String() == other.url.String()
}

// WellKnownURL returns the entity configuration well-known URL for i.
func (i Identifier) WellKnownURL() string {
	u := i.url
	u.Path = joinPath(u.Path, ".well-known/openid-federation")
	return u.String()
}

func joinPath(base, suffix string) string {
	if base == "" {
		return "/" + suffix
	}
	if base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

func (i Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.url.String())
}

func (i *Identifier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := NewIdentifier(s)
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// IsZero reports whether i was never assigned.
func (i Identifier) IsZero() bool {
	return i.url.String() == ""
}
