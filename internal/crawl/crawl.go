// Package crawl implements the federation tree crawl of spec.md §4.6: an
// asynchronous depth-first walk from one or more starting entities,
// following each entity's "federation_list_endpoint" to discover
// subordinates, classifying every reachable entity, and staging the result
// for an atomic publish via internal/store's staging→live swap.
//
// Grounded on internal/resolve's DFS shape (shared visited set, branch-
// local failure handling) generalized from "stop at the first trust
// anchor" to "visit everything reachable"; instrumented the way
// _examples/Mindburn-Labs-helm/core/pkg/observability wires a
// TrackOperation span/metric pair around a unit of work.
package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/fetch"
	"github.com/sunet/inmor-go/internal/jose"
	"github.com/sunet/inmor-go/internal/obs"
	"github.com/sunet/inmor-go/internal/store"
)

// Crawler walks a federation tree and stages a collection index.
type Crawler struct {
	Fetcher *fetch.Fetcher
	Store   store.Store
	Obs     *obs.Provider

	// MaxEntities bounds the number of entities a single Run will visit,
	// guarding against a pathologically large or cyclic federation tree
	// (spec.md §5 "Concurrency & resource model").
	MaxEntities int
}

// New constructs a Crawler.
func New(fetcher *fetch.Fetcher, st store.Store, provider *obs.Provider) *Crawler {
	return &Crawler{
		Fetcher:     fetcher,
		Store:       st,
		Obs:         provider,
		MaxEntities: 10000,
	}
}

// Result summarizes a completed crawl.
type Result struct {
	Visited int
	Staged  int
	Errors  []error
}

// Run walks the federation tree starting at each of roots, stages every
// reachable entity's classification into the store, then performs the
// atomic staging→live swap. Failures reaching or classifying any one
// entity are branch-local: Run continues the walk and records the error in
// Result.Errors rather than aborting (spec.md §7 "Partial failure during a
// crawl").
func (c *Crawler) Run(ctx context.Context, roots []string) (Result, error) {
	ctx, done := c.track(ctx, "crawl.run", attribute.Int("roots", len(roots)))
	var result Result
	var err error
	defer func() { done(err) }()

	visited := make(map[string]bool)
	for _, root := range roots {
		c.walk(ctx, root, "", visited, &result)
	}

	if err = c.Store.Swap(ctx); err != nil {
		return result, fmt.Errorf("crawl: swap staging to live: %w", err)
	}
	return result, nil
}

func (c *Crawler) walk(ctx context.Context, current, authority string, visited map[string]bool, result *Result) {
	if visited[current] || len(visited) >= c.MaxEntities {
		return
	}
	visited[current] = true
	result.Visited++

	if err := ctx.Err(); err != nil {
		result.Errors = append(result.Errors, err)
		return
	}

	ctx, done := c.track(ctx, "crawl.visit", attribute.String("entity_id", current))
	var err error
	defer func() { done(err) }()

	token, err := c.Fetcher.FetchEntityConfiguration(ctx, current)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("crawl: fetch %s: %w", current, err))
		return
	}
	_, payload, err := jose.Verify(token, nil, time.Now())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("crawl: verify %s: %w", current, err))
		return
	}
	var ec entity.EntityConfiguration
	if err = json.Unmarshal(payload, &ec); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("crawl: decode %s: %w", current, err))
		return
	}

	entry := classify(current, ec)
	if err = c.Store.StageEntity(ctx, authority, entry); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("crawl: stage %s: %w", current, err))
		return
	}
	result.Staged++

	fe, ok := ec.Metadata.FederationEntity()
	if !ok || fe.ListEndpoint == "" {
		return // leaf entity: no federation_list_endpoint to descend through
	}

	subs, listErr := c.listSubordinates(ctx, fe.ListEndpoint)
	if listErr != nil {
		result.Errors = append(result.Errors, fmt.Errorf("crawl: list subordinates of %s: %w", current, listErr))
		return
	}
	for _, sub := range subs {
		c.walk(ctx, sub, current, visited, result)
	}
}

// classify derives a CollectionEntry from a verified entity configuration,
// per spec.md §3 "Entity classification" and "Collection entry".
func classify(entityID string, ec entity.EntityConfiguration) entity.CollectionEntry {
	types := entity.DetectEntityTypes(ec.Metadata)

	ui := make(map[string]entity.UIInfo)
	for _, t := range types {
		if t == entity.TypeFederationEntity {
			if fe, ok := ec.Metadata.FederationEntity(); ok {
				ui[string(t)] = entity.UIInfo{
					DisplayName: fe.OrganizationName,
					LogoURI:     fe.LogoURI,
					PolicyURI:   fe.PolicyURI,
				}
			}
			continue
		}
		if cl, ok := ec.Metadata.ClientLike(t); ok {
			ui[string(t)] = entity.UIInfo{
				DisplayName: cl.ClientName,
				LogoURI:     cl.LogoURI,
				PolicyURI:   cl.PolicyURI,
			}
		}
	}

	var marks []string
	for _, raw := range ec.TrustMarks {
		var tm struct {
			ID string `json:"trust_mark_id"`
		}
		if json.Unmarshal(raw, &tm) == nil && tm.ID != "" {
			marks = append(marks, tm.ID)
		}
	}

	return entity.CollectionEntry{
		EntityID:    entityID,
		EntityTypes: types,
		UIInfo:      ui,
		TrustMarks:  marks,
	}
}

// listSubordinates calls an authority's federation_list_endpoint and
// decodes the JSON array of subordinate entity identifiers it returns
// (spec.md §6 "/list"), through the same rate-limited Fetcher every other
// egress path in this package uses.
func (c *Crawler) listSubordinates(ctx context.Context, listEndpoint string) ([]string, error) {
	body, err := c.Fetcher.FetchList(ctx, listEndpoint)
	if err != nil {
		return nil, err
	}

	var subs []string
	if err := json.Unmarshal([]byte(body), &subs); err != nil {
		return nil, fmt.Errorf("decode subordinate list: %w", err)
	}
	return subs, nil
}

func (c *Crawler) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if c.Obs == nil {
		return ctx, func(error) {}
	}
	return c.Obs.TrackOperation(ctx, name, attrs...)
}
