package entity_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/entity"
)

func TestDetectEntityTypesAlwaysIncludesFederationEntity(t *testing.T) {
	m := entity.Metadata{
		entity.TypeOpenIDProvider: json.RawMessage(`{"client_name":"Example OP"}`),
	}
	types := entity.DetectEntityTypes(m)
	require.Contains(t, types, entity.TypeFederationEntity)
	require.Contains(t, types, entity.TypeOpenIDProvider)
}

func TestDetectEntityTypesBareAuthority(t *testing.T) {
	types := entity.DetectEntityTypes(entity.Metadata{})
	require.Equal(t, []entity.EntityTypeIdentifier{entity.TypeFederationEntity}, types)
}

func TestMetadataFederationEntity(t *testing.T) {
	m := entity.Metadata{
		entity.TypeFederationEntity: json.RawMessage(`{"federation_list_endpoint":"https://ta.example/list","organization_name":"Example TA"}`),
	}
	fe, ok := m.FederationEntity()
	require.True(t, ok)
	require.Equal(t, "https://ta.example/list", fe.ListEndpoint)
	require.Equal(t, "Example TA", fe.OrganizationName)
}

func TestMetadataFederationEntityAbsent(t *testing.T) {
	_, ok := entity.Metadata{}.FederationEntity()
	require.False(t, ok)
}

func TestMetadataClientLike(t *testing.T) {
	m := entity.Metadata{
		entity.TypeOpenIDRelyingParty: json.RawMessage(`{"client_name":"Example RP","logo_uri":"https://rp.example/logo.png"}`),
	}
	cl, ok := m.ClientLike(entity.TypeOpenIDRelyingParty)
	require.True(t, ok)
	require.Equal(t, "Example RP", cl.ClientName)
	require.Equal(t, "https://rp.example/logo.png", cl.LogoURI)
}
