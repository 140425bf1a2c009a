package report

import "fmt"

// Catchment identifies one cluster of related sequences by its ordinal.
// The Name is the key other tools use in file names and metadata.
type Catchment struct {
	ID   int
	Name string
}

// Catchments builds the catchment list for a run of the given count,
// numbered from 1.
func Catchments(count int) []Catchment {
	cs := make([]Catchment, count)
	for i := range cs {
		cs[i] = Catchment{ID: i + 1, Name: fmt.Sprintf("catchment_%d", i+1)}
	}
	return cs
}

// SummaryRow is one projected metadata row in a report table.
type SummaryRow map[string]string

// CatchmentSummary aggregates the context sequences of one catchment.
type CatchmentSummary struct {
	Total int

	// Earliest and latest sample dates in ISO form; empty when the run
	// has no date column.
	EarliestDate string
	LatestDate   string

	// Human-readable top-10 breakdowns, empty when the column is absent.
	Locations string
	Lineages  string

	// Raw SNP strings, collected but not summarised.
	SNPs []string
}

// CatchmentData is everything the template sees for one catchment.
// Sections that were not selected stay at their zero values and the
// template must tolerate that.
type CatchmentData struct {
	Catchment

	Summary      *CatchmentSummary
	Newick       string
	SnipitSVG    string
	TimelineJSON string

	// Map layers are not produced yet; the keys exist so templates can
	// reference them.
	MapBackground string
	MapQueries    string
}

// Document is the aggregated structure handed to the renderer, rebuilt
// fresh for every report.
type Document struct {
	QuerySummary     []SummaryRow
	FastaSummaryPass []SummaryRow
	FastaSummaryFail []SummaryRow

	Catchments []CatchmentData

	// BackgroundData is a single JSON blob keyed by report/background id.
	BackgroundData string
}
