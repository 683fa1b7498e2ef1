package policy

import (
	"encoding/json"
	"fmt"

	"github.com/sunet/inmor-go/internal/entity"
)

// ApplyChain runs the full metadata-policy algorithm of spec.md §4.4 over a
// resolved trust chain: reverse the chain so the trust anchor comes first,
// fold each subordinate statement's metadata_policy into an accumulated
// policy via MergePolicies, then apply the accumulated policy — together
// with the nearest subordinate statement's forced metadata override — to
// the subject's declared metadata via ApplyPolicyDocument. filter, if
// non-empty, narrows the result to matching entity-type keys unless doing
// so would empty the result, per Design Note "Ambiguity in entity_type
// filtering when intersection empty".
func ApplyChain(m Merger, chain entity.TrustChain, filter []entity.EntityTypeIdentifier) (entity.Metadata, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("policy: empty chain")
	}

	reversed := make(entity.TrustChain, len(chain))
	for i, v := range chain {
		reversed[len(chain)-1-i] = v
	}

	merged := Document{}
	var forced map[string]json.RawMessage

	for _, v := range reversed[1:] {
		if !v.IsSubordinate || v.Subordinate == nil {
			continue
		}
		docPolicy, err := toDocument(v.Subordinate.MetadataPolicy)
		if err != nil {
			return nil, fmt.Errorf("policy: decode metadata_policy for %s: %w", v.Subordinate.Subject, err)
		}
		merged, err = m.MergePolicies(merged, docPolicy)
		if err != nil {
			return nil, err
		}
		if v.Subordinate.Metadata != nil {
			forced = metadataToStringMap(v.Subordinate.Metadata)
		}
	}

	subject := chain[0].EntityConfig
	if subject == nil {
		return nil, fmt.Errorf("policy: chain's first element is not an entity configuration")
	}

	applied, err := m.ApplyPolicyDocument(PolicyDocument{
		MetadataPolicy: merged,
		ForcedMetadata: forced,
	}, metadataToStringMap(subject.Metadata))
	if err != nil {
		return nil, err
	}

	result := stringMapToMetadata(applied)
	return filterEntityTypes(result, filter), nil
}

func toDocument(raw map[entity.EntityTypeIdentifier]json.RawMessage) (Document, error) {
	doc := Document{}
	for et, etRaw := range raw {
		var etPolicy EntityTypePolicy
		if err := json.Unmarshal(etRaw, &etPolicy); err != nil {
			return nil, err
		}
		doc[string(et)] = etPolicy
	}
	return doc, nil
}

func metadataToStringMap(m entity.Metadata) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for et, raw := range m {
		out[string(et)] = raw
	}
	return out
}

func stringMapToMetadata(m map[string]json.RawMessage) entity.Metadata {
	out := make(entity.Metadata, len(m))
	for et, raw := range m {
		out[entity.EntityTypeIdentifier(et)] = raw
	}
	return out
}

// filterEntityTypes retains only the entity types named in filter, unless
// filter is empty or its intersection with result is empty — in both of
// those cases result passes through unfiltered (Design Note, spec.md §9).
func filterEntityTypes(result entity.Metadata, filter []entity.EntityTypeIdentifier) entity.Metadata {
	if len(filter) == 0 {
		return result
	}
	want := make(map[entity.EntityTypeIdentifier]bool, len(filter))
	for _, t := range filter {
		want[t] = true
	}
	filtered := entity.Metadata{}
	for et, raw := range result {
		if want[et] {
			filtered[et] = raw
		}
	}
	if len(filtered) == 0 {
		return result
	}
	return filtered
}
