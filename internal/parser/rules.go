/**
 * Field rules for contract text
 *
 * Every field is an ordered list of (pattern, normalizer) rules evaluated in
 * priority order; the first rule producing a normalized value wins. Rules are
 * data so each one can be tested on its own.
 */

package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Rule is one candidate pattern for a field. The first capture group is the value.
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	Normalize func(string) (string, bool)
}

// Apply returns the first match of the rule whose capture survives normalization.
func (r Rule) Apply(text string) (string, bool) {
	for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		value := strings.TrimSpace(m[1])
		if r.Normalize != nil {
			if v, ok := r.Normalize(value); ok {
				return v, true
			}
			continue
		}
		if value != "" {
			return value, true
		}
	}
	return "", false
}

// firstMatch evaluates rules in order and returns the first value found.
func firstMatch(rules []Rule, text string) (string, string, bool) {
	for _, r := range rules {
		if v, ok := r.Apply(text); ok {
			return v, r.Name, true
		}
	}
	return "", "", false
}

const contractLabel = `(?i)Contract\s*(?:No\.|Number|#|ID)?\s*[:.]?\s*`

// ContractNumberRules recognise the usual numbering schemes, most specific first.
var ContractNumberRules = []Rule{
	{
		Name:      "prefixed",
		Pattern:   regexp.MustCompile(contractLabel + `((?:SAAS|CON|AGR|SER|CNT)-?\d{3,6}(?:-[A-Z0-9]+)?)`),
		Normalize: requireDigit,
	},
	{
		Name:      "segmented",
		Pattern:   regexp.MustCompile(contractLabel + `([A-Z0-9]+-[A-Z0-9]+-\d{3,6})`),
		Normalize: requireDigit,
	},
	{
		Name:      "alphanumeric",
		Pattern:   regexp.MustCompile(contractLabel + `([A-Z0-9]{5,20})\b`),
		Normalize: requireDigit,
	},
	{
		// An explicit "Number:" style label admits identifiers without digits.
		Name:    "labeled-alphanumeric",
		Pattern: regexp.MustCompile(`(?i)Contract\s*(?:(?:No\.|Number|ID)\s*:|#\s*:?)\s*([A-Z0-9]{5,20})\b`),
	},
	{
		Name:      "agreement",
		Pattern:   regexp.MustCompile(`(?i)Agreement\s*(?:No\.|Number|#|ID)?\s*[:.]?\s*([A-Z0-9-]{5,20})\b`),
		Normalize: requireDigit,
	},
}

const (
	monthDate   = `([A-Za-z]+\.?\s+\d{1,2},?\s*\d{4})`
	numericDate = `(\d{1,2}[-/]\d{1,2}[-/]\d{4}|\d{4}[-/]\d{1,2}[-/]\d{1,2})`
)

// EffectiveDateRules match the start of the contract term.
var EffectiveDateRules = []Rule{
	{
		Name:      "labeled",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Effective|Start|Commencement)\s*Date\s*[:.]?\s*` + monthDate),
		Normalize: NormalizeDate,
	},
	{
		Name:      "numeric",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Effective|Start|Commencement)(?:\s*Date)?\s*[:.]?\s*` + numericDate),
		Normalize: NormalizeDate,
	},
	{
		Name:      "as-of",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Effective|Start|Commencement)\s*as\s*of\s*` + monthDate),
		Normalize: NormalizeDate,
	},
}

// ExpirationDateRules match the end of the contract term.
var ExpirationDateRules = []Rule{
	{
		Name:      "labeled",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Expiration|End|Termination)\s*Date\s*[:.]?\s*` + monthDate),
		Normalize: NormalizeDate,
	},
	{
		Name:      "numeric",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Expiration|End|Termination)(?:\s*Date)?\s*[:.]?\s*` + numericDate),
		Normalize: NormalizeDate,
	},
	{
		Name:      "valid-until",
		Pattern:   regexp.MustCompile(`(?i)\b(?:Valid|Expires?)\s*(?:until|through)\s*` + monthDate),
		Normalize: NormalizeDate,
	},
}

const amount = `([\d,]+(?:\.\d{2})?)`

// TotalValueRules match the contract total; the value must be a positive number.
var TotalValueRules = []Rule{
	{
		Name:      "contract-value-dollar",
		Pattern:   regexp.MustCompile(`(?i)Total\s+Contract\s+Value\s*:?\s*\$\s*` + amount),
		Normalize: normalizeAmount,
	},
	{
		Name:      "contract-value",
		Pattern:   regexp.MustCompile(`(?i)Total\s+Contract\s+Value\s*:?\s*(?:USD|US\$|EUR|GBP)?\s*` + amount),
		Normalize: normalizeAmount,
	},
	{
		Name:      "total-value",
		Pattern:   regexp.MustCompile(`(?i)Total\s+Value\s*:?\s*\$?\s*` + amount),
		Normalize: normalizeAmount,
	},
}

// PaymentTermLabels mark the start of a payment terms block.
var PaymentTermLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Payment\s+Terms?\b[^:.\n]*[:.\n]`),
	regexp.MustCompile(`(?i)Terms\s+of\s+Payment\b[^:.\n]*[:.\n]`),
	regexp.MustCompile(`(?i)Payment\s+Schedule\b[^:.\n]*[:.\n]`),
}

func requireDigit(v string) (string, bool) {
	if v == "" {
		return "", false
	}
	for _, r := range v {
		if unicode.IsDigit(r) {
			return v, true
		}
	}
	return "", false
}

func normalizeAmount(v string) (string, bool) {
	v = strings.ReplaceAll(v, ",", "")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return "", false
	}
	return v, true
}
