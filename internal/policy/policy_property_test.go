//go:build property
// +build property

package policy_test

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/policy"
)

// genMetadata builds a random entity.Metadata over a small, fixed alphabet
// of entity-type names, so filter generation below has a realistic chance
// of overlapping it.
var entityTypeAlphabet = []entity.EntityTypeIdentifier{
	entity.TypeFederationEntity,
	entity.TypeOpenIDProvider,
	entity.TypeOpenIDRelyingParty,
	entity.TypeOAuthClient,
}

func genEntityType() gopter.Gen {
	return gen.OneConstOf(
		entityTypeAlphabet[0], entityTypeAlphabet[1], entityTypeAlphabet[2], entityTypeAlphabet[3],
	)
}

func genMetadata() gopter.Gen {
	return gen.SliceOf(genEntityType()).Map(func(types []entity.EntityTypeIdentifier) entity.Metadata {
		m := entity.Metadata{}
		for _, t := range types {
			m[t] = json.RawMessage(`{}`)
		}
		return m
	})
}

func genFilter() gopter.Gen {
	return gen.SliceOf(genEntityType())
}

// TestApplyChainFilterMonotonicity is spec.md §8's entity-type filter
// monotonicity property: filtering a resolved chain's metadata by
// entity_type never introduces a type absent from the unfiltered result,
// and an empty intersection always falls back to the unfiltered result
// rather than an empty one (the Design Note spec.md §9 pins down).
func TestApplyChainFilterMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("entity-type filtering never adds a type and never empties a non-empty result", prop.ForAll(
		func(declared entity.Metadata, filter []entity.EntityTypeIdentifier) bool {
			chain := entity.TrustChain{
				{EntityConfig: &entity.EntityConfiguration{Metadata: declared}},
			}
			result, err := policy.ApplyChain(policy.Engine{}, chain, filter)
			if err != nil {
				return false
			}

			if len(declared) == 0 {
				return len(result) == 0
			}

			want := make(map[entity.EntityTypeIdentifier]bool, len(filter))
			for _, f := range filter {
				want[f] = true
			}

			intersects := false
			for et := range declared {
				if want[et] {
					intersects = true
					break
				}
			}

			if len(filter) == 0 || !intersects {
				// Unfiltered fallback: result must equal declared exactly.
				return len(result) == len(declared)
			}

			// Non-empty intersection: every surviving key must have been
			// both declared and requested — filtering never invents keys.
			for et := range result {
				if _, declaredOK := declared[et]; !declaredOK || !want[et] {
					return false
				}
			}
			return true
		},
		genMetadata(),
		genFilter(),
	))

	properties.TestingRun(t)
}
