// Package resolve implements the trust-chain resolver of spec.md §4.3: a
// depth-first search over authority-hint edges from a subject entity to
// one of several candidate trust anchors, verifying every signed
// statement along the way and guarding against cycles.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/fetch"
	"github.com/sunet/inmor-go/internal/jose"
)

// ErrNoChain is returned when no authority-hint path from the subject
// reaches a listed trust anchor. Per spec.md §4.3 "Partial failure", this
// is not itself surfaced as a rich error: the endpoint layer declares
// invalid_trust_chain when it sees an empty chain.
var ErrNoChain = errors.New("resolve: no trust chain to any candidate trust anchor")

// Clock returns the current time; overridable in tests for expiry cases.
type Clock func() time.Time

// Resolver resolves subjects to trust anchors per spec.md §4.3.
type Resolver struct {
	Fetcher *fetch.Fetcher
	Now     Clock
}

// New constructs a Resolver.
func New(fetcher *fetch.Fetcher) *Resolver {
	return &Resolver{Fetcher: fetcher, Now: time.Now}
}

// Resolve assembles the ordered, verified trust chain from sub to one of
// trustAnchors, subject-first / trust-anchor-last, or ErrNoChain if no
// authority-hint path reaches any of them.
func (r *Resolver) Resolve(ctx context.Context, sub string, trustAnchors []string) (entity.TrustChain, error) {
	tas := make(map[string]bool, len(trustAnchors))
	for _, ta := range trustAnchors {
		tas[ta] = true
	}
	visited := make(map[string]bool)

	chain, ok := r.resolveFrom(ctx, sub, tas, true, visited)
	if !ok {
		return nil, ErrNoChain
	}
	return chain, nil
}

// resolveFrom is the recursive step. Design Note 1 ("Recursive async with
// cycle set") calls for boxing the recursive call to avoid a compile-time
// self-referential type; in Go there is no such restriction on a plain
// method, so the recursion here is a straightforward method on *Resolver
// — the boxing concern the design note raises only bites languages whose
// async/generic machinery can't express a directly self-referential
// suspending closure. The externally observable behavior (subject-first
// ordering, shared visited set, first-hint-wins) is identical either way.
func (r *Resolver) resolveFrom(
	ctx context.Context,
	current string,
	tas map[string]bool,
	isRoot bool,
	visited map[string]bool,
) (entity.TrustChain, bool) {
	token, err := r.Fetcher.FetchEntityConfiguration(ctx, current)
	if err != nil {
		return nil, false
	}
	_, payload, err := jose.Verify(token, nil, r.Now())
	if err != nil {
		return nil, false
	}
	var ec entity.EntityConfiguration
	if err := json.Unmarshal(payload, &ec); err != nil {
		return nil, false
	}

	visited[current] = true

	var chain entity.TrustChain
	if isRoot {
		chain = append(chain, entity.VerifiedStatement{
			Token:        token,
			EntityConfig: &ec,
		})
	}

	for _, ah := range ec.AuthorityHints {
		ahID := ah.String()
		if visited[ahID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, false
		}

		ahToken, err := r.Fetcher.FetchEntityConfiguration(ctx, ahID)
		if err != nil {
			continue
		}
		_, ahPayload, err := jose.Verify(ahToken, nil, r.Now())
		if err != nil {
			continue
		}
		var ahEC entity.EntityConfiguration
		if err := json.Unmarshal(ahPayload, &ahEC); err != nil {
			continue
		}

		fe, ok := ahEC.Metadata.FederationEntity()
		if !ok || fe.FetchEndpoint == "" {
			continue // structural error (spec.md §7): branch-local, not fatal
		}

		subToken, err := r.Fetcher.FetchSubordinateStatement(ctx, fe.FetchEndpoint, current)
		if err != nil {
			continue
		}
		ahJWKS := ahEC.JWKS
		_, subPayload, err := jose.Verify(subToken, &ahJWKS, r.Now())
		if err != nil {
			continue
		}
		var subStmt entity.SubordinateStatement
		if err := json.Unmarshal(subPayload, &subStmt); err != nil {
			continue
		}
		if err := entity.ValidateMetadataPolicy(subStmt.MetadataPolicy); err != nil {
			continue // structural error (spec.md §7): branch-local, not fatal
		}

		if tas[ahID] {
			chain = append(chain,
				entity.VerifiedStatement{Token: subToken, Subordinate: &subStmt, IsSubordinate: true},
				entity.VerifiedStatement{Token: ahToken, EntityConfig: &ahEC, IsTrustAnchor: true},
			)
			return chain, true
		}

		rest, ok := r.resolveFrom(ctx, ahID, tas, false, visited)
		if !ok {
			continue
		}
		chain = append(chain,
			entity.VerifiedStatement{Token: subToken, Subordinate: &subStmt, IsSubordinate: true},
		)
		chain = append(chain, rest...)
		return chain, true
	}

	return nil, false
}

// EffectiveExpiration computes the resolve-response exp per spec.md §4.3
// "Expiration of the resolve response": min(exp) over all emitted
// VerifiedStatements, falling back to now+24h if none carry exp.
func EffectiveExpiration(chain entity.TrustChain, now time.Time) int64 {
	if min, ok := chain.MinExpiration(); ok {
		return min
	}
	return now.Add(24 * time.Hour).Unix()
}
