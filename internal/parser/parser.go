package parser

import (
	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// Parse derives the structured contract fields from text. It is pure: the same
// text always yields the same fields, and a missing match leaves a field empty.
func Parse(text string) document.StructuredFields {
	var fields document.StructuredFields

	if v, _, ok := firstMatch(ContractNumberRules, text); ok {
		fields.ContractNumber = v
	}
	fields.Parties = ParseParties(text)
	if v, _, ok := firstMatch(EffectiveDateRules, text); ok {
		fields.EffectiveDate = v
	}
	if v, _, ok := firstMatch(ExpirationDateRules, text); ok {
		fields.ExpirationDate = v
	}
	fields.PaymentTerms = ParsePaymentTerms(text)
	fields.TotalValue = ParseTotalValue(text)
	fields.Items = ParseItems(text)

	return fields
}
