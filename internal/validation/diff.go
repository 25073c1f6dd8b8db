/**
 * Validation / Diff Engine
 *
 * Blocks are compared by their text. Corrections that change a block's
 * confidence, bounds or page are "modified"; blocks whose text only appears
 * on one side are "added" or "removed". Each changed block costs a fixed
 * penalty against the original confidence.
 */

package validation

import (
	"math"
	"reflect"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// PenaltyPerChange is subtracted from the original confidence per changed block.
const PenaltyPerChange = 0.05

// Diff computes the block-level changes from original to corrected.
// When a text appears more than once on one side, its last occurrence is used.
func Diff(original, corrected []document.PageAnnotation) document.Changes {
	orig := indexByText(original)
	corr := indexByText(corrected)

	var changes document.Changes
	for _, text := range orderedKeys(corrected) {
		c := corr[text]
		o, ok := orig[text]
		switch {
		case !ok:
			changes.Added = append(changes.Added, c)
		case o != c:
			changes.Modified = append(changes.Modified, document.BlockChange{Original: o, Corrected: c})
		}
	}
	for _, text := range orderedKeys(original) {
		if _, ok := corr[text]; !ok {
			changes.Removed = append(changes.Removed, orig[text])
		}
	}
	return changes
}

func indexByText(blocks []document.PageAnnotation) map[string]document.PageAnnotation {
	idx := make(map[string]document.PageAnnotation, len(blocks))
	for _, b := range blocks {
		idx[b.Text] = b
	}
	return idx
}

// orderedKeys returns each distinct block text once, in first-seen order.
func orderedKeys(blocks []document.PageAnnotation) []string {
	seen := make(map[string]bool, len(blocks))
	keys := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if seen[b.Text] {
			continue
		}
		seen[b.Text] = true
		keys = append(keys, b.Text)
	}
	return keys
}

// Confidence applies the change penalty, clamped to [0,1] and rounded to 4 places.
func Confidence(original float64, changes document.Changes) float64 {
	v := original - PenaltyPerChange*float64(changes.Count())
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v*10000) / 10000
}

// StatusFor maps a validation confidence to the resulting status.
func StatusFor(confidence, threshold float64) document.Status {
	if confidence >= threshold {
		return document.StatusValidated
	}
	return document.StatusValidationRequired
}

// ModifiedFields lists the structured fields whose corrected value differs.
func ModifiedFields(original, corrected document.StructuredFields) []string {
	var fields []string
	add := func(name string, changed bool) {
		if changed {
			fields = append(fields, name)
		}
	}

	add("contract_number", original.ContractNumber != corrected.ContractNumber)
	add("parties", !sameSlice(original.Parties, corrected.Parties))
	add("effective_date", original.EffectiveDate != corrected.EffectiveDate)
	add("expiration_date", original.ExpirationDate != corrected.ExpirationDate)
	add("payment_terms", !sameSlice(original.PaymentTerms, corrected.PaymentTerms))
	add("total_value", !sameFloat(original.TotalValue, corrected.TotalValue))
	add("items", !sameSlice(original.Items, corrected.Items))
	return fields
}

// sameSlice treats nil and empty as equal.
func sameSlice[T any](a, b []T) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
