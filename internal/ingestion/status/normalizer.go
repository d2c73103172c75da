// Package status maps free-text status values, in whatever language a
// merchant typed them, onto the small vocabulary the destination schema
// allows. Normalization never fails: an unrecognized value still resolves
// through the deterministic projection table.
package status

import (
	"context"
	_ "embed"
	"sort"
	"strings"

	"orderdesk_backend/platform/logger"
	"orderdesk_backend/platform/textnorm"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var vocabYAML []byte

type vocabulary struct {
	Canonicals map[string][]string `yaml:"canonicals"`
	Prefer     map[string][]string `yaml:"prefer"`
}

var vocab = loadVocabulary()

// variantIndex: normalized variant -> canonical status.
var variantIndex = buildVariantIndex(vocab)

func loadVocabulary() vocabulary {
	var v vocabulary
	if err := yaml.Unmarshal(vocabYAML, &v); err != nil {
		panic("status: invalid embedded vocabulary: " + err.Error())
	}
	return v
}

func buildVariantIndex(v vocabulary) map[string]string {
	index := make(map[string]string)
	for canonical, variants := range v.Canonicals {
		index[canonical] = canonical
		for _, variant := range variants {
			index[textnorm.Fold(variant)] = canonical
		}
	}
	return index
}

// AllowedSet is the canonical statuses accepted by the destination schema.
type AllowedSet struct {
	members   map[string]struct{}
	signature string
}

// NewAllowedSet builds an AllowedSet with a stable signature.
func NewAllowedSet(values []string) AllowedSet {
	members := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		folded := textnorm.Fold(v)
		if folded == "" {
			continue
		}
		if _, ok := members[folded]; ok {
			continue
		}
		members[folded] = struct{}{}
		cleaned = append(cleaned, folded)
	}
	sort.Strings(cleaned)
	return AllowedSet{members: members, signature: strings.Join(cleaned, ",")}
}

func (s AllowedSet) Contains(v string) bool {
	_, ok := s.members[v]
	return ok
}

func (s AllowedSet) Signature() string { return s.signature }

func (s AllowedSet) Members() []string {
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s AllowedSet) Empty() bool { return len(s.members) == 0 }

// Classifier is the optional AI step: pick one member of allowed for raw.
type Classifier interface {
	ClassifyStatus(ctx context.Context, raw string, allowed []string) (string, error)
}

type Normalizer struct {
	cache      *Cache
	classifier Classifier
	log        *logger.Logger
}

// New creates a Normalizer. classifier may be nil; the heuristic path is a
// complete degraded mode on its own.
func New(cache *Cache, classifier Classifier, log *logger.Logger) *Normalizer {
	if cache == nil {
		cache = NewCache()
	}
	return &Normalizer{cache: cache, classifier: classifier, log: log}
}

// Normalize resolves raw into a member of allowed. Allowed-set members pass
// through unchanged (idempotence). Results are memoized per
// (raw, allowed-signature).
func (n *Normalizer) Normalize(ctx context.Context, raw string, allowed AllowedSet) string {
	folded := textnorm.Fold(raw)

	// Fast path: already allowed.
	if allowed.Contains(folded) {
		return folded
	}

	cacheKey := folded + "\x1f" + allowed.Signature()
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached
	}

	result := n.resolve(ctx, raw, folded, allowed)
	n.cache.Put(cacheKey, result)
	return result
}

func (n *Normalizer) resolve(ctx context.Context, raw, folded string, allowed AllowedSet) string {
	if canonical, ok := variantIndex[folded]; ok {
		return project(canonical, allowed)
	}

	if n.classifier != nil {
		picked, err := n.classifier.ClassifyStatus(ctx, raw, allowed.Members())
		if err != nil {
			n.log.Warn("status classifier failed, using fallback", "value", raw, "error", err.Error())
		} else if allowed.Contains(textnorm.Fold(picked)) {
			// Only literal members are accepted; anything else falls through.
			return textnorm.Fold(picked)
		} else {
			n.log.Warn("status classifier returned non-member, using fallback", "value", raw, "picked", picked)
		}
	}

	return project("pending", allowed)
}

// project maps a canonical status onto the allowed set via the
// prefer-common-status table.
func project(canonical string, allowed AllowedSet) string {
	if allowed.Contains(canonical) {
		return canonical
	}
	for _, alt := range vocab.Prefer[canonical] {
		if allowed.Contains(alt) {
			return alt
		}
	}
	if members := allowed.Members(); len(members) > 0 {
		return members[0]
	}
	return canonical
}
