package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// ItemSectionHeaders open the services section, in priority order.
var ItemSectionHeaders = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Description\s+of\s+Services?\s*:?`),
	regexp.MustCompile(`(?i)Services?\s+Description\s*:?`),
	regexp.MustCompile(`(?i)Scope\s+of\s+Services?\s*:?`),
	regexp.MustCompile(`(?i)Services?\s+Provided\s*:?`),
}

var sectionEnd = regexp.MustCompile(`(?i)\n\s*\d+\.|Client\s+Responsibilities|Provider\s+Responsibilities`)

// PlatformRules find a named platform or product inside a services section.
var PlatformRules = []Rule{
	{
		Name:    "access-to",
		Pattern: regexp.MustCompile(`(?i)access\s+to\s+(?:the\s+)?([\w\s]+?)(?:\s*\(.*?\))?(?:\s+via|\s+through|\s*$)`),
	},
	{
		Name:    "provide-access-to",
		Pattern: regexp.MustCompile(`(?i)provide.*?access\s+to\s+(?:the\s+)?([\w\s]+?)(?:\s*\(.*?\))?(?:\s+via|\s+through|\s*$)`),
	},
	{
		Name:    "provide-the",
		Pattern: regexp.MustCompile(`(?i)provide\s+(?:the\s+)?([\w\s]+?)(?:\s*\(.*?\))?(?:\s+service|\s+platform|\s+system)`),
	},
}

// ServiceRules are the sentence-level fallback when no services section exists.
var ServiceRules = []Rule{
	{
		Name:    "shall-provide",
		Pattern: regexp.MustCompile(`(?i)Provider\s+(?:shall|will|agrees\s+to)\s+provide\s+([^.]+)`),
	},
	{
		Name:    "services-include",
		Pattern: regexp.MustCompile(`(?i)Services?\s+includes?\s+([^.]+)`),
	},
	{
		Name:    "shall-deliver",
		Pattern: regexp.MustCompile(`(?i)Provider\s+(?:shall|will|agrees\s+to)\s+deliver\s+([^.]+)`),
	},
}

var (
	serviceName   = regexp.MustCompile(`(?i)(?:the\s+)?([\w\s]+?)(?:\s*\(.*?\))?(?:\s+via|\s+through|\s+platform|\s+service|\s*$)`)
	quantityHint  = regexp.MustCompile(`(?i)\b(\d{1,6})\s+(?:units?|seats?|licen[cs]es?|users?)\b`)
	unitPriceHint = regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d{2})?)\s*(?:per\b|/|each\b)`)
)

const genericItemName = "Service"

// ParseItems extracts the contract's line item from the services section, or
// from the first "Provider shall provide ..." sentence when there is no such
// section. Only the first match is taken.
func ParseItems(text string) []document.Item {
	if section, ok := servicesSection(text); ok {
		return sectionItems(section)
	}

	for _, rule := range ServiceRules {
		if desc, ok := rule.Apply(text); ok {
			if desc = cleanSpace(desc); desc != "" {
				return []document.Item{newItem(itemName(desc), desc)}
			}
		}
	}
	return nil
}

// servicesSection returns the body under the first matching header, cut at the
// next numbered heading, a responsibilities label, a '#', or the end of text.
func servicesSection(text string) (string, bool) {
	for _, header := range ItemSectionHeaders {
		loc := header.FindStringIndex(text)
		if loc == nil {
			continue
		}
		body := strings.TrimLeft(text[loc[1]:], " \t\r\n")
		if i := strings.IndexByte(body, '#'); i >= 0 {
			body = body[:i]
		}
		if end := sectionEnd.FindStringIndex(body); end != nil {
			body = body[:end[0]]
		}
		if body = strings.TrimSpace(body); body != "" {
			return body, true
		}
	}
	return "", false
}

func sectionItems(section string) []document.Item {
	for _, rule := range PlatformRules {
		if name, ok := rule.Apply(section); ok {
			if name = cleanSpace(name); name != "" {
				return []document.Item{newItem(name, sentenceContaining(splitSentences(section), name, section))}
			}
		}
	}
	return []document.Item{newItem(genericItemName, cleanSpace(section))}
}

func itemName(desc string) string {
	for _, rule := range PlatformRules {
		if name, ok := rule.Apply(desc); ok {
			return cleanSpace(name)
		}
	}
	if m := serviceName.FindStringSubmatch(desc); m != nil {
		if name := cleanSpace(m[1]); name != "" {
			return name
		}
	}
	return genericItemName
}

func newItem(name, desc string) document.Item {
	item := document.Item{Name: name, Description: desc}
	if m := quantityHint.FindStringSubmatch(desc); m != nil {
		if q, err := strconv.Atoi(m[1]); err == nil && q > 0 {
			item.Quantity = &q
		}
	}
	if m := unitPriceHint.FindStringSubmatch(desc); m != nil {
		if p, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil && p > 0 {
			item.UnitPrice = &p
		}
	}
	return item
}

func sentenceContaining(sentences []string, name, fallback string) string {
	for _, s := range sentences {
		if strings.Contains(cleanSpace(s), name) {
			return cleanSpace(s)
		}
	}
	return cleanSpace(fallback)
}

// splitSentences breaks text after '.', '!' or '?' when followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if isSpace(text[i+1]) {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
