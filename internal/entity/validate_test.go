package entity_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/entity"
)

func TestValidateMetadataPolicyAcceptsWellFormedDocument(t *testing.T) {
	doc := map[entity.EntityTypeIdentifier]json.RawMessage{
		entity.TypeOpenIDRelyingParty: json.RawMessage(`{
			"scope": {"subset_of": ["openid", "profile"], "default": "openid"},
			"contacts": {"add": ["ops@example.com"]}
		}`),
	}
	require.NoError(t, entity.ValidateMetadataPolicy(doc))
}

func TestValidateMetadataPolicyAcceptsEmptyDocument(t *testing.T) {
	require.NoError(t, entity.ValidateMetadataPolicy(nil))
}

func TestValidateMetadataPolicyRejectsUnknownOperator(t *testing.T) {
	doc := map[entity.EntityTypeIdentifier]json.RawMessage{
		entity.TypeOpenIDRelyingParty: json.RawMessage(`{
			"scope": {"force_value": "openid"}
		}`),
	}
	err := entity.ValidateMetadataPolicy(doc)
	require.Error(t, err)
	var malformed *entity.ErrMalformedMetadataPolicy
	require.True(t, errors.As(err, &malformed))
}

func TestValidateMetadataPolicyRejectsNonObjectClaimPolicy(t *testing.T) {
	doc := map[entity.EntityTypeIdentifier]json.RawMessage{
		entity.TypeOpenIDRelyingParty: json.RawMessage(`{
			"scope": ["not", "an", "object"]
		}`),
	}
	require.Error(t, entity.ValidateMetadataPolicy(doc))
}
