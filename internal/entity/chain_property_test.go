//go:build property
// +build property

package entity_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sunet/inmor-go/internal/entity"
)

// TestTrustChainMinExpirationIsALowerBound is spec.md §8's chain-expiration
// property: MinExpiration never returns a value greater than any individual
// non-zero exp present in the chain — the resolve-response exp this backs
// (internal/resolve.EffectiveExpiration) must never outlive the shortest-
// lived statement in the chain it was computed from.
func TestTrustChainMinExpirationIsALowerBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("MinExpiration never exceeds any non-zero member expiration", prop.ForAll(
		func(exps []int64) bool {
			chain := make(entity.TrustChain, len(exps))
			for i, exp := range exps {
				chain[i] = entity.VerifiedStatement{
					EntityConfig: &entity.EntityConfiguration{Expiration: exp},
				}
			}

			min, found := chain.MinExpiration()
			anyNonZero := false
			for _, exp := range exps {
				if exp == 0 {
					continue
				}
				anyNonZero = true
				if min > exp {
					return false
				}
			}
			return found == anyNonZero
		},
		gen.SliceOf(gen.Int64Range(0, 1<<40)),
	))

	properties.TestingRun(t)
}

// TestChainTokensPreservesLength is a trivial but useful companion
// property: Tokens() always has exactly one entry per chain member, in
// order, regardless of statement type.
func TestChainTokensPreservesLength(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("Tokens() length always matches chain length", prop.ForAll(
		func(tokens []string) bool {
			chain := make(entity.TrustChain, len(tokens))
			for i, tok := range tokens {
				chain[i] = entity.VerifiedStatement{Token: tok}
			}
			out := chain.Tokens()
			if len(out) != len(tokens) {
				return false
			}
			for i := range tokens {
				if out[i] != tokens[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
