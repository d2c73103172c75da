// Package mapper turns arbitrary spreadsheet headers into canonical field
// names. Matching is heuristic first; an optional AI suggestion fills gaps
// when coverage is weak, and a deterministic fallback guarantees a usable
// mapping without any model at all.
package mapper

import (
	"context"
	"strings"

	"orderdesk_backend/platform/logger"
	"orderdesk_backend/platform/textnorm"
)

// Entity selects the canonical field set being mapped onto.
type Entity string

const (
	EntityOrders   Entity = "orders"
	EntityProducts Entity = "products"
)

// Mapping is the result: a unique-key field plus canonical name → source header.
type Mapping struct {
	UniqueKey string            `json:"uniqueKey" validate:"required"`
	Fields    map[string]string `json:"fields" validate:"required"`
}

// Suggester is the optional AI step. It proposes canonical → header pairs for
// fields the heuristics missed. It is never required for correctness.
type Suggester interface {
	SuggestMapping(ctx context.Context, headers []string, entity Entity, missing []string) (map[string]string, error)
}

// OrderFields are the canonical order columns, in mapping priority order.
var OrderFields = []string{
	"order_id", "status", "total_amount", "customer_name", "customer_phone",
	"customer_address", "city", "product_name", "quantity", "created_at",
}

// ProductFields are the canonical product columns.
var ProductFields = []string{"sku", "name", "price", "stock", "category"}

// Per-field candidate labels, matched after textnorm.Key normalization.
// French and English dominate the sources; common Arabic transliterations
// show up in merchant-maintained sheets.
var orderCandidates = map[string][]string{
	"order_id": {
		"order id", "order", "id commande", "commande", "n commande", "numero commande",
		"external id", "ref", "reference", "order number", "num", "code commande", "raqm talabiya",
	},
	"status": {
		"status", "statut", "etat", "etat commande", "state", "situation", "hala", "halat talabiya",
	},
	"total_amount": {
		"total", "montant", "amount", "prix total", "total amount", "price", "prix",
		"montant total", "total price", "somme", "taman", "thaman",
	},
	"customer_name": {
		"customer name", "client", "nom", "nom client", "name", "full name", "nom complet",
		"customer", "acheteur", "ism", "smiya",
	},
	"customer_phone": {
		"phone", "telephone", "tel", "gsm", "mobile", "numero", "phone number",
		"num tel", "telephone client", "whatsapp", "hatif",
	},
	"customer_address": {
		"address", "adresse", "adresse client", "livraison", "adresse livraison",
		"delivery address", "lieu", "anwan",
	},
	"city": {
		"city", "ville", "ville client", "town", "region", "madina", "mdina",
	},
	"product_name": {
		"product", "produit", "article", "product name", "nom produit", "item",
		"designation", "libelle", "montouj",
	},
	"quantity": {
		"quantity", "quantite", "qty", "qte", "nombre", "nb", "pieces", "adad",
	},
	"created_at": {
		"date", "created at", "date commande", "order date", "created", "horodateur",
		"timestamp", "date creation", "tarikh",
	},
}

var productCandidates = map[string][]string{
	"sku":      {"sku", "ref", "reference", "code", "code produit", "product code", "id"},
	"name":     {"name", "nom", "produit", "product", "article", "designation", "libelle", "title", "titre"},
	"price":    {"price", "prix", "prix unitaire", "unit price", "montant", "tarif", "taman"},
	"stock":    {"stock", "quantity", "quantite", "qty", "qte", "inventaire", "inventory", "disponible"},
	"category": {"category", "categorie", "type", "famille", "collection", "rayon"},
}

type Mapper struct {
	suggest Suggester
	log     *logger.Logger
}

func New(suggest Suggester, log *logger.Logger) *Mapper {
	return &Mapper{suggest: suggest, log: log}
}

// Map resolves headers for the entity. Precedence, highest first: caller
// override, AI suggestion, heuristic match, deterministic fallback.
// Heuristic-only runs are deterministic for identical header sets.
func (m *Mapper) Map(ctx context.Context, headers []string, entity Entity, samples [][]string, override *Mapping) Mapping {
	_ = samples // reserved for value-based disambiguation

	canonical := canonicalFields(entity)
	candidates := candidateTable(entity)

	fields := heuristicMatch(headers, canonical, candidates)

	if m.suggest != nil && len(fields)*2 < len(canonical) {
		missing := make([]string, 0, len(canonical))
		for _, f := range canonical {
			if _, ok := fields[f]; !ok {
				missing = append(missing, f)
			}
		}
		suggested, err := m.suggest.SuggestMapping(ctx, headers, entity, missing)
		if err != nil {
			m.log.Warn("mapping suggestion failed, continuing heuristic-only", "error", err.Error())
		} else {
			applySuggestion(fields, suggested, headers, canonical)
		}
	}

	applyFallback(fields, headers, entity)

	if override != nil {
		for field, header := range override.Fields {
			if header != "" {
				fields[field] = header
			}
		}
	}

	uniqueKey := defaultUniqueKey(entity)
	if override != nil && override.UniqueKey != "" {
		uniqueKey = override.UniqueKey
	}
	if _, ok := fields[uniqueKey]; !ok {
		if header := anyIDHeader(headers); header != "" {
			fields[uniqueKey] = header
		}
	}

	return Mapping{UniqueKey: uniqueKey, Fields: fields}
}

func canonicalFields(entity Entity) []string {
	if entity == EntityProducts {
		return ProductFields
	}
	return OrderFields
}

func candidateTable(entity Entity) map[string][]string {
	if entity == EntityProducts {
		return productCandidates
	}
	return orderCandidates
}

func defaultUniqueKey(entity Entity) string {
	if entity == EntityProducts {
		return "sku"
	}
	return "order_id"
}

// heuristicMatch assigns each canonical field the first header that matches a
// candidate exactly, then falls back to substring containment. Each header is
// consumed at most once.
func heuristicMatch(headers []string, canonical []string, candidates map[string][]string) map[string]string {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = textnorm.Key(h)
	}
	used := make(map[int]bool, len(headers))
	fields := make(map[string]string)

	// Exact pass first so "prix" never steals the "prix total" header.
	for _, field := range canonical {
		for _, cand := range candidates[field] {
			for i, key := range keys {
				if used[i] || key == "" {
					continue
				}
				if key == cand {
					fields[field] = headers[i]
					used[i] = true
					break
				}
			}
			if _, ok := fields[field]; ok {
				break
			}
		}
	}

	for _, field := range canonical {
		if _, ok := fields[field]; ok {
			continue
		}
		for _, cand := range candidates[field] {
			for i, key := range keys {
				if used[i] || key == "" {
					continue
				}
				if strings.Contains(key, cand) || strings.Contains(cand, key) {
					fields[field] = headers[i]
					used[i] = true
					break
				}
			}
			if _, ok := fields[field]; ok {
				break
			}
		}
	}

	return fields
}

// applySuggestion merges AI-proposed pairs, accepting only canonical fields
// and headers that literally exist in the sheet.
func applySuggestion(fields map[string]string, suggested map[string]string, headers []string, canonical []string) {
	known := make(map[string]bool, len(canonical))
	for _, f := range canonical {
		known[f] = true
	}
	present := make(map[string]string, len(headers))
	for _, h := range headers {
		present[textnorm.Key(h)] = h
	}

	for field, header := range suggested {
		if !known[field] {
			continue
		}
		actual, ok := present[textnorm.Key(header)]
		if !ok {
			continue
		}
		fields[field] = actual
	}
}

// applyFallback guarantees the unique key has some candidate when a plausible
// header exists, even if every smarter step came up empty.
func applyFallback(fields map[string]string, headers []string, entity Entity) {
	key := defaultUniqueKey(entity)
	if _, ok := fields[key]; ok {
		return
	}
	if header := anyIDHeader(headers); header != "" {
		fields[key] = header
	} else if len(headers) > 0 {
		fields[key] = headers[0]
	}
}

func anyIDHeader(headers []string) string {
	for _, h := range headers {
		key := textnorm.Key(h)
		if key == "id" || strings.Contains(key, " id") || strings.HasPrefix(key, "id ") ||
			strings.Contains(key, "external") || strings.Contains(key, "ref") {
			return h
		}
	}
	return ""
}
