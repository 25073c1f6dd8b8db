package parser

import (
	"regexp"
	"strings"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	roleLabel      = regexp.MustCompile(`(?i)\b(Provider|Client):`)
	betweenWord    = regexp.MustCompile(`(?i)\bbetween\b`)

	// <Role>: <Name>, a <LegalEntity>, with its principal place of business at <Address>
	rolePartyPattern = regexp.MustCompile(`(?i)^(Provider|Client):\s*([^,]+),\s*an?\s+([^,]+),\s*with\s+its\s+principal\s+place\s+of\s+business\s+at\s+([^\n]+)`)

	// between: <Name>, a <LegalEntity>, ... at <Address> [and <Name>, a ...]
	betweenPartyPattern = regexp.MustCompile(`(?i)(?:\bbetween:?|\band)\s+([^,]+),\s*an?\s+([^,]+),\s*with\s+its\s+principal\s+place\s+of\s+business\s+at\s+([^;\n(]+)`)

	addressConjunction = regexp.MustCompile(`(?i),?\s+and\s+`)
)

// abbreviations end in a period that does not close the address.
var abbreviations = map[string]bool{
	"st": true, "ave": true, "rd": true, "blvd": true, "ste": true, "dr": true,
	"ln": true, "ct": true, "pl": true, "fl": true, "apt": true, "no": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "mt": true, "ft": true,
	"n": true, "s": true, "e": true, "w": true, "hwy": true, "pkwy": true,
}

// ParseParties extracts parties paragraph by paragraph so a match never spans
// two paragraphs. When no labeled party is found the "between" construction is
// tried and roles are assigned by position.
func ParseParties(text string) []document.Party {
	var parties []document.Party
	seen := make(map[string]bool)

	add := func(p document.Party) {
		if p.Name == "" || seen[p.Key()] {
			return
		}
		seen[p.Key()] = true
		parties = append(parties, p)
	}

	for _, paragraph := range paragraphBreak.Split(text, -1) {
		for _, segment := range splitAtRoleLabels(paragraph) {
			m := rolePartyPattern.FindStringSubmatch(segment)
			if m == nil {
				continue
			}
			add(document.Party{
				Name:        cleanSpace(m[2]),
				Role:        strings.ToLower(m[1]),
				LegalEntity: cleanSpace(m[3]),
				Address:     trimAddress(m[4]),
			})
		}
	}
	if len(parties) > 0 {
		return parties
	}

	for i, p := range betweenParties(text) {
		p.Role = "client"
		if i == 0 {
			p.Role = "provider"
		}
		add(p)
	}
	return parties
}

// splitAtRoleLabels cuts a paragraph so each segment starts at a role label.
func splitAtRoleLabels(paragraph string) []string {
	locs := roleLabel.FindAllStringIndex(paragraph, -1)
	segments := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(paragraph)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments = append(segments, paragraph[loc[0]:end])
	}
	return segments
}

// betweenParties scans clauses one after another; each search resumes at the
// previous address so "..., and <Name>, a ..." is found as the next clause.
func betweenParties(text string) []document.Party {
	var parties []document.Party
	start := betweenWord.FindStringIndex(text)
	if start == nil {
		return nil
	}
	pos := start[0]
	for pos < len(text) {
		m := betweenPartyPattern.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		address := text[pos+m[6] : pos+m[7]]
		if loc := addressConjunction.FindStringIndex(address); loc != nil {
			address = address[:loc[0]]
		}
		parties = append(parties, document.Party{
			Name:        cleanSpace(text[pos+m[2] : pos+m[3]]),
			LegalEntity: cleanSpace(text[pos+m[4] : pos+m[5]]),
			Address:     trimAddress(address),
		})
		pos += m[6]
	}
	return parties
}

// trimAddress ends the address at the first sentence break, keeping the period
// of a trailing abbreviation such as "St.".
func trimAddress(raw string) string {
	s := cleanSpace(raw)
	s = strings.TrimRight(s, ",; ")

	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			continue
		}
		atEnd := i == len(s)-1
		if !atEnd && s[i+1] != ' ' {
			continue
		}
		if isAbbreviation(s[:i]) {
			if atEnd {
				return s
			}
			continue
		}
		return strings.TrimRight(s[:i], ",; ")
	}
	return s
}

func isAbbreviation(before string) bool {
	idx := strings.LastIndexAny(before, " ,")
	word := strings.ToLower(before[idx+1:])
	return abbreviations[word]
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
