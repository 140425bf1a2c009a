package config

import (
	"fmt"
	"strings"
)

// Section is one kind of report content. The selector string on the command
// line ("1234567" by default) names sections by digit.
type Section int

const (
	SectionSummaryTables Section = iota + 1
	SectionCatchmentSummary
	SectionTree
	SectionSNPAlignment
	SectionTimeline
	SectionBackgroundMap
	SectionQueryMap
)

const minSection, maxSection = SectionSummaryTables, SectionQueryMap

func (s Section) String() string {
	switch s {
	case SectionSummaryTables:
		return "summary-tables"
	case SectionCatchmentSummary:
		return "catchment-summary"
	case SectionTree:
		return "tree"
	case SectionSNPAlignment:
		return "snp-alignment"
	case SectionTimeline:
		return "timeline"
	case SectionBackgroundMap:
		return "background-map"
	case SectionQueryMap:
		return "query-map"
	}
	return fmt.Sprintf("section-%d", int(s))
}

// SectionSet is the report feature toggle set.
type SectionSet map[Section]struct{}

// ParseSections reads a selector string of digits '1'..'7'. Anything else is
// an error so a typo in a config file does not silently disable a section.
func ParseSections(selector string) (SectionSet, error) {
	set := SectionSet{}
	for _, r := range strings.TrimSpace(selector) {
		if r == ',' || r == ' ' {
			continue
		}
		if r < '1' || r > '7' {
			return nil, fmt.Errorf("invalid report content selector %q: character %q is not in 1-7", selector, r)
		}
		set[Section(r-'0')] = struct{}{}
	}
	return set, nil
}

// Has reports whether the section was requested.
func (ss SectionSet) Has(s Section) bool {
	_, ok := ss[s]
	return ok
}

func (ss SectionSet) String() string {
	var b strings.Builder
	for s := minSection; s <= maxSection; s++ {
		if ss.Has(s) {
			b.WriteByte(byte('0' + int(s)))
		}
	}
	return b.String()
}
