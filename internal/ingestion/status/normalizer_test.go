package status

import (
	"context"
	"fmt"
	"testing"

	"orderdesk_backend/platform/logger"
)

var schemaStatuses = []string{
	"new", "pending", "processing", "paid", "shipped", "delivered",
	"cancelled", "returned", "failed",
}

func newTestNormalizer(classifier Classifier) *Normalizer {
	return New(NewCache(), classifier, logger.New("development"))
}

func TestNormalize_AllowedPassesThrough(t *testing.T) {
	n := newTestNormalizer(nil)
	allowed := NewAllowedSet(schemaStatuses)

	for _, s := range schemaStatuses {
		if got := n.Normalize(context.Background(), s, allowed); got != s {
			t.Fatalf("Normalize(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(nil)
	allowed := NewAllowedSet(schemaStatuses)

	first := n.Normalize(context.Background(), "confirmé", allowed)
	second := n.Normalize(context.Background(), first, allowed)
	if first != second {
		t.Fatalf("not idempotent: %q then %q", first, second)
	}
}

func TestNormalize_ConfirmedProjectsToProcessing(t *testing.T) {
	// The schema has no "confirmed" member, so the confirmed family lands on
	// the first preferred alternative that the schema does accept.
	n := newTestNormalizer(nil)
	allowed := NewAllowedSet(schemaStatuses)

	for _, raw := range []string{"confirmé", "Confirmée", "CONFIRMED", "validé", "mekked", "ok"} {
		if got := n.Normalize(context.Background(), raw, allowed); got != "processing" {
			t.Fatalf("Normalize(%q) = %q, want processing", raw, got)
		}
	}
}

func TestNormalize_Variants(t *testing.T) {
	n := newTestNormalizer(nil)
	allowed := NewAllowedSet(schemaStatuses)

	cases := map[string]string{
		"Livré":          "delivered",
		"annulée":        "cancelled",
		"en attente":     "pending",
		"Expédié":        "shipped",
		"payé":           "paid",
		"mlghi":          "cancelled",
		"wslat":          "delivered",
		"en cours":       "processing",
		"pas de réponse": "pending",
	}
	for raw, want := range cases {
		if got := n.Normalize(context.Background(), raw, allowed); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalize_UnknownFallsBackToPending(t *testing.T) {
	n := newTestNormalizer(nil)
	allowed := NewAllowedSet(schemaStatuses)

	if got := n.Normalize(context.Background(), "zzz-unheard-of", allowed); got != "pending" {
		t.Fatalf("Normalize(unknown) = %q, want pending", got)
	}
}

type fixedClassifier struct {
	answer string
	err    error
	calls  int
}

func (c *fixedClassifier) ClassifyStatus(_ context.Context, _ string, _ []string) (string, error) {
	c.calls++
	return c.answer, c.err
}

func TestNormalize_ClassifierAnswerMustBeMember(t *testing.T) {
	cl := &fixedClassifier{answer: "definitely-not-a-status"}
	n := newTestNormalizer(cl)
	allowed := NewAllowedSet(schemaStatuses)

	if got := n.Normalize(context.Background(), "statut bizarre", allowed); got != "pending" {
		t.Fatalf("non-member classifier answer accepted: %q", got)
	}
	if cl.calls != 1 {
		t.Fatalf("classifier calls = %d", cl.calls)
	}
}

func TestNormalize_ClassifierMemberAccepted(t *testing.T) {
	cl := &fixedClassifier{answer: "shipped"}
	n := newTestNormalizer(cl)
	allowed := NewAllowedSet(schemaStatuses)

	if got := n.Normalize(context.Background(), "statut bizarre", allowed); got != "shipped" {
		t.Fatalf("Normalize = %q, want shipped", got)
	}
}

func TestNormalize_ClassifierErrorFallsBack(t *testing.T) {
	cl := &fixedClassifier{err: fmt.Errorf("model down")}
	n := newTestNormalizer(cl)
	allowed := NewAllowedSet(schemaStatuses)

	if got := n.Normalize(context.Background(), "statut bizarre", allowed); got != "pending" {
		t.Fatalf("Normalize = %q, want pending", got)
	}
}

func TestNormalize_ResultIsCached(t *testing.T) {
	cl := &fixedClassifier{answer: "shipped"}
	n := newTestNormalizer(cl)
	allowed := NewAllowedSet(schemaStatuses)

	_ = n.Normalize(context.Background(), "statut bizarre", allowed)
	_ = n.Normalize(context.Background(), "statut bizarre", allowed)
	if cl.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1 (second hit served from cache)", cl.calls)
	}
}

func TestNormalize_CacheKeyedByAllowedSet(t *testing.T) {
	cl := &fixedClassifier{answer: "shipped"}
	n := newTestNormalizer(cl)

	_ = n.Normalize(context.Background(), "statut bizarre", NewAllowedSet(schemaStatuses))
	_ = n.Normalize(context.Background(), "statut bizarre", NewAllowedSet([]string{"shipped", "pending"}))
	if cl.calls != 2 {
		t.Fatalf("classifier calls = %d, want 2 (different allowed sets)", cl.calls)
	}
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache()
	cache.Put("k", "v")
	if cache.Len() != 1 {
		t.Fatalf("len = %d", cache.Len())
	}
	cache.Clear()
	if _, ok := cache.Get("k"); ok {
		t.Fatal("entry survived Clear")
	}
}

func TestAllowedSet_Signature(t *testing.T) {
	a := NewAllowedSet([]string{"b", "a", "a", ""})
	if a.Signature() != "a,b" {
		t.Fatalf("signature = %q", a.Signature())
	}
	if !a.Contains("a") || a.Contains("c") {
		t.Fatal("membership wrong")
	}
	if NewAllowedSet(nil).Empty() != true {
		t.Fatal("empty set not empty")
	}
}

func TestNewModelClassifier_NilModel(t *testing.T) {
	// Without a chat model the normalizer must fall back silently instead of
	// warning on every unknown status.
	if NewModelClassifier(nil) != nil {
		t.Fatal("expected nil classifier for nil model")
	}
}
