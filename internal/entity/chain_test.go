package entity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunet/inmor-go/internal/entity"
)

func TestTrustChainMinExpiration(t *testing.T) {
	chain := entity.TrustChain{
		{EntityConfig: &entity.EntityConfiguration{Expiration: 200}},
		{IsSubordinate: true, Subordinate: &entity.SubordinateStatement{Expiration: 100}},
		{EntityConfig: &entity.EntityConfiguration{Expiration: 300}, IsTrustAnchor: true},
	}
	min, ok := chain.MinExpiration()
	require.True(t, ok)
	require.Equal(t, int64(100), min)
}

func TestTrustChainMinExpirationEmpty(t *testing.T) {
	var chain entity.TrustChain
	_, ok := chain.MinExpiration()
	require.False(t, ok)
}

func TestTrustChainMinExpirationIgnoresZero(t *testing.T) {
	chain := entity.TrustChain{
		{EntityConfig: &entity.EntityConfiguration{Expiration: 0}},
		{EntityConfig: &entity.EntityConfiguration{Expiration: 500}, IsTrustAnchor: true},
	}
	min, ok := chain.MinExpiration()
	require.True(t, ok)
	require.Equal(t, int64(500), min)
}

func TestTrustChainHasTrustAnchor(t *testing.T) {
	withTA := entity.TrustChain{{IsTrustAnchor: true}}
	require.True(t, withTA.HasTrustAnchor())

	withoutTA := entity.TrustChain{{IsTrustAnchor: false}}
	require.False(t, withoutTA.HasTrustAnchor())
}

func TestTrustChainTokensPreservesOrder(t *testing.T) {
	chain := entity.TrustChain{{Token: "a"}, {Token: "b"}, {Token: "c"}}
	require.Equal(t, []string{"a", "b", "c"}, chain.Tokens())
}

func TestTrustChainSubject(t *testing.T) {
	ec := &entity.EntityConfiguration{Subject: entity.MustNewIdentifier("https://leaf.example")}
	chain := entity.TrustChain{{EntityConfig: ec}}
	require.Same(t, ec, chain.Subject())

	var empty entity.TrustChain
	require.Nil(t, empty.Subject())
}
