// Package policy implements the metadata-policy engine of spec.md §4.4:
// merging metadata_policy claims from successive subordinate statements
// (top-down, trust-anchor toward subject) and applying the merged policy,
// together with any forced metadata override, to the subject's declared
// metadata.
//
// No library in the retrieval pack (nor, to this author's knowledge, the
// published Go ecosystem) implements the OpenID Federation §6 policy
// combinator algebra, so this package is intentionally standard-library
// only — see SPEC_FULL.md §4 "Policy library coupling" for the required
// justification, including why google/cel-go (the one plausible pack
// candidate) isn't a fit. The resolver does not use this package; the HTTP
// layer calls ApplyChain with a Merger (the Engine below), so policy
// semantics stay inside this package rather than inline in callers.
package policy

import (
	"encoding/json"
	"fmt"
)

// Operation names the per-claim policy operators spec.md §4.4 names.
type Operation string

const (
	OpDefault    Operation = "default"
	OpOneOf      Operation = "one_of"
	OpSubsetOf   Operation = "subset_of"
	OpSupersetOf Operation = "superset_of"
	OpAdd        Operation = "add"
	OpEssential  Operation = "essential"
)

// ClaimPolicy is the set of operators declared for a single metadata claim.
type ClaimPolicy map[Operation]json.RawMessage

// EntityTypePolicy maps claim name to ClaimPolicy, for one entity type.
type EntityTypePolicy map[string]ClaimPolicy

// Document is metadata_policy keyed by entity type, as carried on a
// subordinate statement.
type Document map[string]EntityTypePolicy

// PolicyDocument pairs a merged metadata_policy with a forced metadata
// override, the structure ApplyPolicyDocument consumes per spec.md §4.4
// ("build a policy document {metadata_policy: merged, metadata: forced}").
type PolicyDocument struct {
	MetadataPolicy Document
	ForcedMetadata map[string]json.RawMessage
}

// Merger is the narrow interface ApplyChain (and so the HTTP layer) depends on, so a future
// external policy library could be substituted without touching caller
// code.
type Merger interface {
	MergePolicies(higher, lower Document) (Document, error)
	ApplyPolicyDocument(doc PolicyDocument, metadata map[string]json.RawMessage) (map[string]json.RawMessage, error)
}

// Engine is the standard-library implementation of Merger.
type Engine struct{}

// MergePolicies combines a higher authority's policy with a nearer
// authority's policy into a single equivalent policy, associative when
// applied top-down (spec.md §4.4). For each entity type and claim present
// in either document, the nearer authority's ("lower") value replaces the
// higher one for default, add and one_of (so a lower one_of can widen the
// higher one), while subset_of intersects, superset_of unions and
// essential is true if either side sets it.
func (Engine) MergePolicies(higher, lower Document) (Document, error) {
	if higher == nil && lower == nil {
		return Document{}, nil
	}
	merged := Document{}
	for et, p := range higher {
		merged[et] = cloneEntityTypePolicy(p)
	}
	for et, lowerPolicy := range lower {
		higherPolicy, ok := merged[et]
		if !ok {
			merged[et] = cloneEntityTypePolicy(lowerPolicy)
			continue
		}
		combined, err := mergeEntityTypePolicy(higherPolicy, lowerPolicy)
		if err != nil {
			return nil, fmt.Errorf("policy: merge entity type %q: %w", et, err)
		}
		merged[et] = combined
	}
	return merged, nil
}

func cloneEntityTypePolicy(p EntityTypePolicy) EntityTypePolicy {
	out := make(EntityTypePolicy, len(p))
	for claim, cp := range p {
		outCP := make(ClaimPolicy, len(cp))
		for op, v := range cp {
			outCP[op] = v
		}
		out[claim] = outCP
	}
	return out
}

func mergeEntityTypePolicy(higher, lower EntityTypePolicy) (EntityTypePolicy, error) {
	merged := cloneEntityTypePolicy(higher)
	for claim, lowerCP := range lower {
		higherCP, ok := merged[claim]
		if !ok {
			merged[claim] = cloneClaimPolicy(lowerCP)
			continue
		}
		combined, err := mergeClaimPolicy(higherCP, lowerCP)
		if err != nil {
			return nil, fmt.Errorf("claim %q: %w", claim, err)
		}
		merged[claim] = combined
	}
	return merged, nil
}

func cloneClaimPolicy(cp ClaimPolicy) ClaimPolicy {
	out := make(ClaimPolicy, len(cp))
	for op, v := range cp {
		out[op] = v
	}
	return out
}

// mergeClaimPolicy combines higher's and lower's operators for a single
// claim. essential is OR'd (once essential, always essential down the
// chain); subset_of intersects (a nearer authority may only narrow the
// allowed set further); superset_of unions (the nearer authority's
// required members are added to what must already be present); one_of,
// default, and add from the nearer authority replace the higher
// authority's, since those express the nearer authority's own binding
// choice rather than a constraint to be combined set-theoretically.
func mergeClaimPolicy(higher, lower ClaimPolicy) (ClaimPolicy, error) {
	merged := cloneClaimPolicy(higher)

	for op, lowerVal := range lower {
		switch op {
		case OpSubsetOf:
			higherVal, ok := merged[op]
			if !ok {
				merged[op] = lowerVal
				continue
			}
			intersected, err := intersectJSONArrays(higherVal, lowerVal)
			if err != nil {
				return nil, err
			}
			merged[op] = intersected
		case OpSupersetOf:
			higherVal, ok := merged[op]
			if !ok {
				merged[op] = lowerVal
				continue
			}
			unioned, err := unionJSONArrays(higherVal, lowerVal)
			if err != nil {
				return nil, err
			}
			merged[op] = unioned
		case OpEssential:
			higherVal, ok := merged[op]
			if !ok {
				merged[op] = lowerVal
				continue
			}
			hb, lb := decodeBool(higherVal), decodeBool(lowerVal)
			raw, _ := json.Marshal(hb || lb)
			merged[op] = raw
		default: // default, one_of, add: nearer authority wins
			merged[op] = lowerVal
		}
	}
	return merged, nil
}

func decodeBool(raw json.RawMessage) bool {
	var b bool
	_ = json.Unmarshal(raw, &b)
	return b
}

func intersectJSONArrays(a, b json.RawMessage) (json.RawMessage, error) {
	av, bv, err := decodeTwoArrays(a, b)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(bv))
	for _, v := range bv {
		set[string(v)] = true
	}
	var out []json.RawMessage
	for _, v := range av {
		if set[string(v)] {
			out = append(out, v)
		}
	}
	return json.Marshal(out)
}

func unionJSONArrays(a, b json.RawMessage) (json.RawMessage, error) {
	av, bv, err := decodeTwoArrays(a, b)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(av)+len(bv))
	var out []json.RawMessage
	for _, v := range append(av, bv...) {
		if !seen[string(v)] {
			seen[string(v)] = true
			out = append(out, v)
		}
	}
	return json.Marshal(out)
}

func decodeTwoArrays(a, b json.RawMessage) ([]json.RawMessage, []json.RawMessage, error) {
	var av, bv []json.RawMessage
	if err := json.Unmarshal(a, &av); err != nil {
		return nil, nil, fmt.Errorf("policy: expected array: %w", err)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return nil, nil, fmt.Errorf("policy: expected array: %w", err)
	}
	return av, bv, nil
}

// ApplyPolicyDocument applies doc's metadata_policy (and, if present, its
// forced metadata override) to metadata, per spec.md §4.4.
func (Engine) ApplyPolicyDocument(doc PolicyDocument, metadata map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(metadata))
	for et, raw := range metadata {
		out[et] = raw
	}

	for et, forcedRaw := range doc.ForcedMetadata {
		out[et] = forcedRaw
	}

	for et, etPolicy := range doc.MetadataPolicy {
		var claims map[string]json.RawMessage
		if raw, ok := out[et]; ok {
			if err := json.Unmarshal(raw, &claims); err != nil {
				return nil, fmt.Errorf("policy: entity type %q metadata is not an object: %w", et, err)
			}
		} else {
			claims = map[string]json.RawMessage{}
		}

		for claim, cp := range etPolicy {
			applied, err := applyClaimPolicy(cp, claims[claim])
			if err != nil {
				return nil, fmt.Errorf("policy: claim %q: %w", claim, err)
			}
			if applied == nil {
				delete(claims, claim)
				continue
			}
			claims[claim] = applied
		}

		merged, err := json.Marshal(claims)
		if err != nil {
			return nil, err
		}
		out[et] = merged
	}

	return out, nil
}

func applyClaimPolicy(cp ClaimPolicy, current json.RawMessage) (json.RawMessage, error) {
	result := current

	if v, ok := cp[OpDefault]; ok && result == nil {
		result = v
	}
	if v, ok := cp[OpAdd]; ok {
		merged, err := addValues(result, v)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	if v, ok := cp[OpSubsetOf]; ok && result != nil {
		filtered, err := intersectJSONArrays(result, v)
		if err != nil {
			return nil, err
		}
		result = filtered
	}
	if v, ok := cp[OpOneOf]; ok && result != nil {
		var allowed []json.RawMessage
		if err := json.Unmarshal(v, &allowed); err != nil {
			return nil, fmt.Errorf("one_of: expected array: %w", err)
		}
		found := false
		for _, a := range allowed {
			if string(a) == string(result) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("one_of: value %s not in allowed set", result)
		}
	}
	if v, ok := cp[OpEssential]; ok && decodeBool(v) && result == nil {
		return nil, fmt.Errorf("essential claim missing a value")
	}

	return result, nil
}

// addValues unions a scalar-or-array "add" policy value into current,
// which may itself be absent, a scalar, or an array.
func addValues(current, add json.RawMessage) (json.RawMessage, error) {
	if current == nil {
		return add, nil
	}
	var curArr, addArr []json.RawMessage
	if err := json.Unmarshal(current, &curArr); err != nil {
		// current isn't an array: treat as a singleton and union.
		curArr = []json.RawMessage{current}
	}
	if err := json.Unmarshal(add, &addArr); err != nil {
		addArr = []json.RawMessage{add}
	}
	return unionJSONArrays(mustMarshal(curArr), mustMarshal(addArr))
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
