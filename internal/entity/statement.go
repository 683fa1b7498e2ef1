package entity

import (
	"encoding/json"

	"github.com/go-jose/go-jose/v4"
)

// EntityTypeIdentifier names a top-level key of a metadata object, e.g.
// "openid_provider" or "federation_entity".
type EntityTypeIdentifier string

const (
	TypeFederationEntity    EntityTypeIdentifier = "federation_entity"
	TypeOpenIDProvider      EntityTypeIdentifier = "openid_provider"
	TypeOpenIDRelyingParty  EntityTypeIdentifier = "openid_relying_party"
	TypeOAuthClient         EntityTypeIdentifier = "oauth_client"
	TypeOAuthAuthServer     EntityTypeIdentifier = "oauth_authorization_server"
	TypeOAuthResourceServer EntityTypeIdentifier = "oauth_resource"
)

// FederationEntityMetadata is the well-known subset of the
// "federation_entity" metadata object this server relies on structurally.
// Unknown fields round-trip through Metadata's raw JSON, not this struct.
type FederationEntityMetadata struct {
	FetchEndpoint   string `json:"federation_fetch_endpoint,omitempty"`
	ListEndpoint    string `json:"federation_list_endpoint,omitempty"`
	ResolveEndpoint string `json:"federation_resolve_endpoint,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	LogoURI         string `json:"logo_uri,omitempty"`
	PolicyURI       string `json:"policy_uri,omitempty"`
}

// ClientLikeMetadata captures the display fields common to OP/RP/client
// metadata objects, used to derive collection UI info (spec.md §3
// "Collection entry").
type ClientLikeMetadata struct {
	ClientName string `json:"client_name,omitempty"`
	LogoURI    string `json:"logo_uri,omitempty"`
	PolicyURI  string `json:"policy_uri,omitempty"`
}

// Metadata is the keyed-by-entity-type metadata object carried by both
// entity configurations and subordinate statements (as a forced override).
type Metadata map[EntityTypeIdentifier]json.RawMessage

// Types returns the set of entity-type keys present, used for
// classification (spec.md §3 "Entity classification").
func (m Metadata) Types() []EntityTypeIdentifier {
	types := make([]EntityTypeIdentifier, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	return types
}

// FederationEntity decodes the "federation_entity" metadata object, if present.
func (m Metadata) FederationEntity() (FederationEntityMetadata, bool) {
	raw, ok := m[TypeFederationEntity]
	if !ok {
		return FederationEntityMetadata{}, false
	}
	var fe FederationEntityMetadata
	if err := json.Unmarshal(raw, &fe); err != nil {
		return FederationEntityMetadata{}, false
	}
	return fe, true
}

// ClientLike decodes the client-display fields for any entity type that
// carries them (openid_provider, openid_relying_party, oauth_client, ...).
func (m Metadata) ClientLike(t EntityTypeIdentifier) (ClientLikeMetadata, bool) {
	raw, ok := m[t]
	if !ok {
		return ClientLikeMetadata{}, false
	}
	var c ClientLikeMetadata
	if err := json.Unmarshal(raw, &c); err != nil {
		return ClientLikeMetadata{}, false
	}
	return c, true
}

// EntityConfiguration is an entity's self-issued signed statement
// (iss == sub). spec.md §3.
type EntityConfiguration struct {
	Issuer         Identifier           `json:"iss"`
	Subject        Identifier           `json:"sub"`
	IssuedAt       int64                `json:"iat"`
	Expiration     int64                `json:"exp"`
	JWKS           jose.JSONWebKeySet   `json:"jwks"`
	AuthorityHints []Identifier         `json:"authority_hints,omitempty"`
	Metadata       Metadata             `json:"metadata,omitempty"`
	TrustMarks     []json.RawMessage    `json:"trust_marks,omitempty"`
}

// SubordinateStatement is an authority's signed statement about one of its
// direct subordinates (iss == authority, sub == subordinate). spec.md §3.
type SubordinateStatement struct {
	Issuer         Identifier                             `json:"iss"`
	Subject        Identifier                             `json:"sub"`
	IssuedAt       int64                                  `json:"iat"`
	Expiration     int64                                  `json:"exp"`
	JWKS           jose.JSONWebKeySet                      `json:"jwks"`
	MetadataPolicy map[EntityTypeIdentifier]json.RawMessage `json:"metadata_policy,omitempty"`
	Metadata       Metadata                                `json:"metadata,omitempty"`
}

// DetectEntityTypes classifies an entity by the top-level keys of its
// metadata object. "federation_entity" is always included, per spec.md §3
// ("always implicitly present; marks authorities when no OP/RP key is
// present").
func DetectEntityTypes(m Metadata) []EntityTypeIdentifier {
	seen := map[EntityTypeIdentifier]bool{TypeFederationEntity: true}
	for _, t := range m.Types() {
		seen[t] = true
	}
	out := make([]EntityTypeIdentifier, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out
}
