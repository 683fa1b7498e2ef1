// Package store implements the key-value collection index of spec.md §3
// and §9: a staging area that a crawl writes into freely, and a live area
// that readers see, swapped atomically once a crawl completes.
//
// Grounded on _examples/Mindburn-Labs-helm/core/pkg/kernel/limiter_redis.go's
// pipeline-based batch-write pattern (MSET plus a single EXEC), generalized
// here to a staging→live swap: every staging key is renamed into its live
// counterpart inside one pipeline, so readers never observe a half-swapped
// collection. RFC 8785 canonicalization (gowebpki/jcs) gives the ETag a
// representation-independent hash of the live collection.
package store

import (
	"context"
	"errors"

	"github.com/sunet/inmor-go/internal/entity"
)

// ErrNotFound is returned when a queried key has no value, live or staged.
var ErrNotFound = errors.New("store: not found")

// TrustMarkRecord is a trust mark issuance as retained for status/list
// queries (spec.md §4.5): the raw signed token plus the claims needed to
// answer without re-verifying on every read.
type TrustMarkRecord struct {
	Token      string
	Subject    string
	TrustMark  string
	IssuedAt   int64
	Expiration int64
	Revoked    bool
}

// Store is the collection index's storage contract. Implementations must
// make Swap atomic: concurrent readers must see either the entirely old or
// entirely new live generation, never a mix (spec.md §9 "Atomicity of the
// staging→live swap").
type Store interface {
	// StageEntity records a crawled entity's CollectionEntry and its
	// subordinate-of relationship into the staging area.
	StageEntity(ctx context.Context, authority string, entry entity.CollectionEntry) error

	// Swap atomically replaces the live collection with everything
	// currently staged, then clears staging.
	Swap(ctx context.Context) error

	// GetLive returns a live entity's CollectionEntry.
	GetLive(ctx context.Context, entityID string) (entity.CollectionEntry, error)

	// ListLive returns every live entity, optionally filtered to those
	// whose EntityTypes intersect want. An empty want returns every entry;
	// otherwise entries sharing no type with want are omitted.
	ListLive(ctx context.Context, want []entity.EntityTypeIdentifier) ([]entity.CollectionEntry, error)

	// Subordinates returns the live direct subordinates of authority.
	Subordinates(ctx context.Context, authority string) ([]string, error)

	// LiveETag returns a stable hash of the entire live collection's
	// canonical JSON representation, for HTTP caching (spec.md §6).
	LiveETag(ctx context.Context) (string, error)

	// PutTrustMark records a trust mark issuance.
	PutTrustMark(ctx context.Context, rec TrustMarkRecord) error

	// TrustMark returns the most recently issued trust mark of trustMarkType
	// for subject.
	TrustMark(ctx context.Context, subject, trustMarkType string) (TrustMarkRecord, error)

	// TrustMarksBySubject returns every trust mark ever issued to subject.
	TrustMarksBySubject(ctx context.Context, subject string) ([]TrustMarkRecord, error)

	// TrustMarksByType returns every subject ever issued trustMarkType.
	TrustMarksByType(ctx context.Context, trustMarkType string) ([]TrustMarkRecord, error)

	// TrustMarkHashKnown reports whether sha256Hex is the SHA-256 digest of
	// some trust mark token this server has ever issued — the tm_alltime
	// membership witness of spec.md §3/§4.5.
	TrustMarkHashKnown(ctx context.Context, sha256Hex string) (bool, error)

	// HistoricalKeys returns every signing key JWKS this server has
	// published, keyed by the kid under which it was retained.
	HistoricalKeys(ctx context.Context) (map[string][]byte, error)
	PutHistoricalKey(ctx context.Context, kid string, jwk []byte) error

	// SubordinateStatement returns the authority's own cached subordinate
	// statement token about sub, from the "subordinates" namespace
	// (spec.md §3: "authority's own issuance cache, populated
	// out-of-band"). The core only reads this; provisioning tooling out of
	// scope here is responsible for writing it; within this module only
	// tests call PutSubordinateStatement.
	SubordinateStatement(ctx context.Context, sub string) (string, error)
	PutSubordinateStatement(ctx context.Context, sub, token string) error
}
