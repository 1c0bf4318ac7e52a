// Package engine implements the conciliation stages: matching, orphan and
// variance analysis, scenario classification, net-balance resolution and
// the pipeline that drives them.
package engine

import (
	"creditnote-conciliator/internal/loader"
	"creditnote-conciliator/internal/models"
)

// MatchedPair joins one debt record to one credit record sharing a business
// key. Both sides keep their own amounts and source refs.
type MatchedPair struct {
	Debt   *models.Record
	Credit *models.Record
}

// Key returns the shared business key of the pair.
func (p MatchedPair) Key() models.Key {
	return p.Debt.Key()
}

// Match inner-joins the two piles on (card, operation) with full Cartesian
// semantics: a key with N debt rows and M credit rows yields N times M
// pairs. No deduplication on either side; repeated rows are legal and the
// aggregation stages sum them.
func Match(debt, credit *loader.Pile) []MatchedPair {
	creditIndex := make(map[models.Key][]*models.Record, len(credit.Records))
	for _, c := range credit.Records {
		key := c.Key()
		creditIndex[key] = append(creditIndex[key], c)
	}

	var pairs []MatchedPair
	for _, d := range debt.Records {
		for _, c := range creditIndex[d.Key()] {
			pairs = append(pairs, MatchedPair{Debt: d, Credit: c})
		}
	}
	return pairs
}

// MatchedKeySet returns the set of keys that produced at least one pair.
func MatchedKeySet(pairs []MatchedPair) map[models.Key]bool {
	keys := make(map[models.Key]bool, len(pairs))
	for _, p := range pairs {
		keys[p.Key()] = true
	}
	return keys
}
