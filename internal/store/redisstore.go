package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
	"github.com/redis/go-redis/v9"

	"github.com/sunet/inmor-go/internal/entity"
)

// Redis key namespacing (spec.md §3, §9):
//
//	staging:entry:{id}          CollectionEntry JSON, written during a crawl
//	staging:subordinates:{id}   set of direct subordinate entity ids
//	staging:all                set of every staged entity id
//	live:entry:{id}             CollectionEntry JSON, served to readers
//	live:subordinates:{id}      set of direct subordinate entity ids
//	live:all                    set of every live entity id
//	live:all_sorted             sorted set (score 0 for every member) giving
//	                            lexicographic iteration order without a
//	                            separate SORT call
//	tm:{subject}|{type}         most recent TrustMarkRecord JSON for (subject, type)
//	tmtype:{type}               set of subjects ever issued {type}
//	tm_pairs                    set of every "{subject}|{type}" pair ever issued
//	tm_alltime                  set of SHA-256 hex digests of every trust mark
//	                            token ever issued
//	historical_keys             hash of kid -> JWK JSON, every signing key
//	                            this server has ever published
const (
	keyStagingEntry        = "staging:entry:"
	keyStagingSubordinates = "staging:subordinates:"
	keyStagingAll          = "staging:all"
	keyLiveEntry           = "live:entry:"
	keyLiveSubordinates    = "live:subordinates:"
	keyLiveAll             = "live:all"
	keyLiveAllSorted       = "live:all_sorted"
	keyTrustMarkPrefix     = "tm:"
	keyTrustMarkTypePrefix = "tmtype:"
	keyTrustMarkAllTime    = "tm_alltime"
	keyTrustMarkPairs      = "tm_pairs" // supplemental: subject|type enumeration for TrustMarksBySubject
	keyHistoricalKeys      = "historical_keys"
	keySubordinatePrefix   = "subordinates:"
)

// RedisStore is the production Store, grounded on
// _examples/Mindburn-Labs-helm/core/pkg/kernel/limiter_redis.go's pipelined
// batch writes. Swap renames every staging key into its live counterpart inside a
// single MULTI/EXEC transaction pipeline, so concurrent readers never
// observe a partially-swapped generation (spec.md §9).
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) StageEntity(ctx context.Context, authority string, e entity.CollectionEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyStagingEntry+e.EntityID, raw, 0)
	pipe.SAdd(ctx, keyStagingAll, e.EntityID)
	if authority != "" {
		pipe.SAdd(ctx, keyStagingSubordinates+authority, e.EntityID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: stage entity %s: %w", e.EntityID, err)
	}
	return nil
}

// Swap moves every staging:* key into its live:* counterpart, rebuilds
// live:all_sorted, and clears staging, all within one transaction pipeline.
func (s *RedisStore) Swap(ctx context.Context) error {
	ids, err := s.rdb.SMembers(ctx, keyStagingAll).Result()
	if err != nil {
		return fmt.Errorf("store: swap: list staged ids: %w", err)
	}

	oldIDs, err := s.rdb.SMembers(ctx, keyLiveAll).Result()
	if err != nil {
		return fmt.Errorf("store: swap: list live ids: %w", err)
	}

	// RENAME fails on a missing source key, and leaves never get a
	// staging:subordinates set, so only rename the sets that exist.
	hasSubs := make(map[string]bool, len(ids))
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, keyStagingSubordinates+id).Result()
		if err != nil {
			return fmt.Errorf("store: swap: check staged subordinates: %w", err)
		}
		hasSubs[id] = n > 0
	}

	pipe := s.rdb.TxPipeline()

	for _, id := range oldIDs {
		pipe.Del(ctx, keyLiveEntry+id)
		pipe.Del(ctx, keyLiveSubordinates+id)
	}
	pipe.Del(ctx, keyLiveAll, keyLiveAllSorted)

	for _, id := range ids {
		pipe.Rename(ctx, keyStagingEntry+id, keyLiveEntry+id)
		if hasSubs[id] {
			pipe.Rename(ctx, keyStagingSubordinates+id, keyLiveSubordinates+id)
		}
		pipe.SAdd(ctx, keyLiveAll, id)
		pipe.ZAdd(ctx, keyLiveAllSorted, redis.Z{Score: 0, Member: id})
	}
	pipe.Del(ctx, keyStagingAll)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: swap: %w", err)
	}
	return nil
}

func (s *RedisStore) GetLive(ctx context.Context, entityID string) (entity.CollectionEntry, error) {
	raw, err := s.rdb.Get(ctx, keyLiveEntry+entityID).Bytes()
	if err == redis.Nil {
		return entity.CollectionEntry{}, ErrNotFound
	}
	if err != nil {
		return entity.CollectionEntry{}, fmt.Errorf("store: get live %s: %w", entityID, err)
	}
	var e entity.CollectionEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entity.CollectionEntry{}, fmt.Errorf("store: decode live %s: %w", entityID, err)
	}
	return e, nil
}

func (s *RedisStore) ListLive(ctx context.Context, want []entity.EntityTypeIdentifier) ([]entity.CollectionEntry, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, keyLiveAllSorted, &redis.ZRangeBy{Min: "0", Max: "0"}).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list live: %w", err)
	}
	sort.Strings(ids)

	out := make([]entity.CollectionEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetLive(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if entryMatchesTypes(e, want) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *RedisStore) Subordinates(ctx context.Context, authority string) ([]string, error) {
	subs, err := s.rdb.SMembers(ctx, keyLiveSubordinates+authority).Result()
	if err != nil {
		return nil, fmt.Errorf("store: subordinates of %s: %w", authority, err)
	}
	sort.Strings(subs)
	return subs, nil
}

func (s *RedisStore) LiveETag(ctx context.Context) (string, error) {
	entries, err := s.ListLive(ctx, nil)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (s *RedisStore) PutTrustMark(ctx context.Context, rec TrustMarkRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal trust mark: %w", err)
	}
	pairKey := rec.Subject + "|" + rec.TrustMark

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyTrustMarkPrefix+pairKey, raw, 0)
	pipe.SAdd(ctx, keyTrustMarkTypePrefix+rec.TrustMark, rec.Subject)
	pipe.SAdd(ctx, keyTrustMarkPairs, pairKey)
	pipe.SAdd(ctx, keyTrustMarkAllTime, tokenHash(rec.Token))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: put trust mark: %w", err)
	}
	return nil
}

func (s *RedisStore) TrustMark(ctx context.Context, subject, trustMarkType string) (TrustMarkRecord, error) {
	raw, err := s.rdb.Get(ctx, keyTrustMarkPrefix+subject+"|"+trustMarkType).Bytes()
	if err == redis.Nil {
		return TrustMarkRecord{}, ErrNotFound
	}
	if err != nil {
		return TrustMarkRecord{}, fmt.Errorf("store: get trust mark: %w", err)
	}
	var rec TrustMarkRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return TrustMarkRecord{}, fmt.Errorf("store: decode trust mark: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) TrustMarkHashKnown(ctx context.Context, sha256Hex string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, keyTrustMarkAllTime, sha256Hex).Result()
	if err != nil {
		return false, fmt.Errorf("store: trust mark hash lookup: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) TrustMarksBySubject(ctx context.Context, subject string) ([]TrustMarkRecord, error) {
	pairs, err := s.rdb.SMembers(ctx, keyTrustMarkPairs).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list trust marks: %w", err)
	}
	var out []TrustMarkRecord
	for _, pair := range pairs {
		subj, typ, ok := splitPair(pair)
		if !ok || subj != subject {
			continue
		}
		rec, err := s.TrustMark(ctx, subj, typ)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) TrustMarksByType(ctx context.Context, trustMarkType string) ([]TrustMarkRecord, error) {
	subjects, err := s.rdb.SMembers(ctx, keyTrustMarkTypePrefix+trustMarkType).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list trust marks by type: %w", err)
	}
	var out []TrustMarkRecord
	for _, subj := range subjects {
		rec, err := s.TrustMark(ctx, subj, trustMarkType)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func splitPair(pair string) (subject, typ string, ok bool) {
	for i := len(pair) - 1; i >= 0; i-- {
		if pair[i] == '|' {
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

func (s *RedisStore) HistoricalKeys(ctx context.Context) (map[string][]byte, error) {
	raw, err := s.rdb.HGetAll(ctx, keyHistoricalKeys).Result()
	if err != nil {
		return nil, fmt.Errorf("store: historical keys: %w", err)
	}
	out := make(map[string][]byte, len(raw))
	for kid, jwk := range raw {
		out[kid] = []byte(jwk)
	}
	return out, nil
}

func (s *RedisStore) PutHistoricalKey(ctx context.Context, kid string, jwk []byte) error {
	if err := s.rdb.HSet(ctx, keyHistoricalKeys, kid, jwk).Err(); err != nil {
		return fmt.Errorf("store: put historical key %s: %w", kid, err)
	}
	return nil
}

func (s *RedisStore) SubordinateStatement(ctx context.Context, sub string) (string, error) {
	token, err := s.rdb.Get(ctx, keySubordinatePrefix+sub).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: subordinate statement %s: %w", sub, err)
	}
	return token, nil
}

func (s *RedisStore) PutSubordinateStatement(ctx context.Context, sub, token string) error {
	if err := s.rdb.Set(ctx, keySubordinatePrefix+sub, token, 0).Err(); err != nil {
		return fmt.Errorf("store: put subordinate statement %s: %w", sub, err)
	}
	return nil
}
