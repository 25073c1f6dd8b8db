package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// ParsePaymentTerms returns the lines of the first labeled payment block. The
// block runs from the label to the next blank line.
func ParsePaymentTerms(text string) []string {
	for _, label := range PaymentTermLabels {
		loc := label.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if lines := blockLines(text[loc[1]:]); len(lines) > 0 {
			return lines
		}
	}
	return nil
}

func blockLines(rest string) []string {
	rest = strings.TrimLeft(rest, " \t")
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")
	if loc := blankLine.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}

	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "-•*·"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseTotalValue returns the first positive total found by TotalValueRules.
func ParseTotalValue(text string) *float64 {
	v, _, ok := firstMatch(TotalValueRules, text)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}
