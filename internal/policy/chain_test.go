package policy_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/policy"
)

func TestApplyChainMergesAcrossSubordinateStatements(t *testing.T) {
	var e policy.Engine

	chain := entity.TrustChain{
		{
			EntityConfig: &entity.EntityConfiguration{
				Subject: entity.MustNewIdentifier("https://rp.example"),
				Metadata: entity.Metadata{
					entity.TypeOpenIDRelyingParty: json.RawMessage(`{"client_name":"Example RP"}`),
				},
			},
		},
		{
			IsSubordinate: true,
			Subordinate: &entity.SubordinateStatement{
				Subject: entity.MustNewIdentifier("https://rp.example"),
				MetadataPolicy: map[entity.EntityTypeIdentifier]json.RawMessage{
					entity.TypeOpenIDRelyingParty: json.RawMessage(`{"scope":{"default":"openid"}}`),
				},
			},
		},
		{
			EntityConfig:  &entity.EntityConfiguration{Subject: entity.MustNewIdentifier("https://ta.example")},
			IsTrustAnchor: true,
		},
	}

	metadata, err := policy.ApplyChain(e, chain, nil)
	require.NoError(t, err)

	rp, ok := metadata[entity.TypeOpenIDRelyingParty]
	require.True(t, ok)
	var claims map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rp, &claims))
	require.JSONEq(t, `"Example RP"`, string(claims["client_name"]))
	require.JSONEq(t, `"openid"`, string(claims["scope"]))
}

func TestApplyChainEmptyIntersectionPassesThroughUnfiltered(t *testing.T) {
	var e policy.Engine

	chain := entity.TrustChain{
		{
			EntityConfig: &entity.EntityConfiguration{
				Subject: entity.MustNewIdentifier("https://op.example"),
				Metadata: entity.Metadata{
					entity.TypeOpenIDProvider: json.RawMessage(`{"issuer":"https://op.example"}`),
				},
			},
		},
		{
			EntityConfig:  &entity.EntityConfiguration{Subject: entity.MustNewIdentifier("https://ta.example")},
			IsTrustAnchor: true,
		},
	}

	metadata, err := policy.ApplyChain(e, chain, []entity.EntityTypeIdentifier{entity.TypeOpenIDRelyingParty})
	require.NoError(t, err)
	require.Contains(t, metadata, entity.TypeOpenIDProvider)
}

func TestApplyChainForcedMetadataFromNearestSubordinateStatement(t *testing.T) {
	var e policy.Engine

	chain := entity.TrustChain{
		{
			EntityConfig: &entity.EntityConfiguration{
				Subject: entity.MustNewIdentifier("https://rp.example"),
				Metadata: entity.Metadata{
					entity.TypeOpenIDRelyingParty: json.RawMessage(`{"client_name":"Declared"}`),
				},
			},
		},
		{
			IsSubordinate: true,
			Subordinate: &entity.SubordinateStatement{
				Subject: entity.MustNewIdentifier("https://rp.example"),
				Metadata: entity.Metadata{
					entity.TypeOpenIDRelyingParty: json.RawMessage(`{"client_name":"Forced"}`),
				},
			},
		},
		{
			EntityConfig:  &entity.EntityConfiguration{Subject: entity.MustNewIdentifier("https://ta.example")},
			IsTrustAnchor: true,
		},
	}

	metadata, err := policy.ApplyChain(e, chain, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"client_name":"Forced"}`, string(metadata[entity.TypeOpenIDRelyingParty]))
}

func TestApplyChainRejectsEmptyChain(t *testing.T) {
	var e policy.Engine
	_, err := policy.ApplyChain(e, nil, nil)
	require.Error(t, err)
}
