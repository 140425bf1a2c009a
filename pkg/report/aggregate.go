// Report aggregation: one merged metadata csv plus the per-catchment
// artifact files in, the document for the template renderer out.

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
)

// Aggregate reads the master metadata and the artifact tree under
// cfg.DataOutdir and assembles the report document. Which sections are
// computed is controlled by the content selector; everything else stays at
// its zero value.
func Aggregate(metadataPath string, cfg *config.Config) (*Document, error) {
	f, err := os.Open(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata %s: %w", metadataPath, err)
	}
	table, err := background.ReadTable(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", metadataPath, err)
	}
	if err := requireColumns(table.Header, []string{"query_boolean", "source", "qc_status", "catchment"}); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", metadataPath, err)
	}

	catchments := Catchments(cfg.CatchmentCount)
	doc := &Document{Catchments: make([]CatchmentData, len(catchments))}
	for i, c := range catchments {
		doc.Catchments[i] = CatchmentData{Catchment: c}
	}

	if cfg.Sections.Has(config.SectionSummaryTables) {
		if doc.QuerySummary, err = querySummary(table, cfg.TableContent); err != nil {
			return nil, err
		}
		if doc.FastaSummaryPass, doc.FastaSummaryFail, err = fastaSummary(table, cfg.FastaTableContent); err != nil {
			return nil, err
		}
	}

	if cfg.Sections.Has(config.SectionCatchmentSummary) {
		summaries, err := catchmentSummary(table, catchments, cfg)
		if err != nil {
			return nil, err
		}
		for i := range doc.Catchments {
			doc.Catchments[i].Summary = summaries[doc.Catchments[i].Name]
		}
	}

	if cfg.Sections.Has(config.SectionTree) {
		if err := inlineTrees(doc, cfg.DataOutdir); err != nil {
			return nil, err
		}
	}
	if cfg.Sections.Has(config.SectionSNPAlignment) {
		if err := inlineSnipit(doc, cfg.DataOutdir); err != nil {
			return nil, err
		}
	}
	if cfg.Sections.Has(config.SectionTimeline) {
		if err := inlineTimelines(doc, cfg.DataOutdir); err != nil {
			return nil, err
		}
	}

	if doc.BackgroundData, err = backgroundData(table, cfg); err != nil {
		return nil, err
	}

	return doc, nil
}

// querySummary projects the query rows onto the configured table columns,
// preserving csv order.
func querySummary(table *background.Table, columns []string) ([]SummaryRow, error) {
	if err := requireColumns(table.Header, columns); err != nil {
		return nil, err
	}

	var rows []SummaryRow
	for _, row := range table.Rows {
		if row["query_boolean"] != "True" {
			continue
		}
		rows = append(rows, project(row, columns))
	}
	return rows, nil
}

// fastaSummary partitions the input-fasta rows by QC status.
func fastaSummary(table *background.Table, columns []string) (pass, fail []SummaryRow, err error) {
	if err := requireColumns(table.Header, columns); err != nil {
		return nil, nil, err
	}

	for _, row := range table.Rows {
		if row["source"] != "input_fasta" {
			continue
		}
		projected := project(row, columns)
		if row["qc_status"] == "Pass" {
			pass = append(pass, projected)
		} else {
			fail = append(fail, projected)
		}
	}
	return pass, fail, nil
}

// catchmentSummary aggregates the context sequences (query_boolean False)
// of every catchment: counts, date range, and top-10 location and lineage
// breakdowns. Which aggregations run depends on which columns the metadata
// actually carries.
func catchmentSummary(table *background.Table, catchments []Catchment, cfg *config.Config) (map[string]*CatchmentSummary, error) {
	summaries := make(map[string]*CatchmentSummary, len(catchments))
	for _, c := range catchments {
		summaries[c.Name] = &CatchmentSummary{}
	}

	hasDate := headerHas(table.Header, cfg.DateColumn)
	hasLocation := headerHas(table.Header, cfg.LocationColumn)
	hasLineage := headerHas(table.Header, "lineage")
	hasSNPs := headerHas(table.Header, "SNPs")

	locations := map[string]counter{}
	lineages := map[string]counter{}
	earliest := map[string]time.Time{}
	latest := map[string]time.Time{}

	for _, row := range table.Rows {
		if row["query_boolean"] != "False" {
			continue
		}
		name := row["catchment"]
		summary, ok := summaries[name]
		if !ok {
			return nil, fmt.Errorf("row assigned to unknown catchment %q", name)
		}
		summary.Total++

		if hasDate {
			d, err := time.Parse("2006-01-02", row[cfg.DateColumn])
			if err != nil {
				return nil, fmt.Errorf("bad %s value %q: %w", cfg.DateColumn, row[cfg.DateColumn], err)
			}
			if first, ok := earliest[name]; !ok || d.Before(first) {
				earliest[name] = d
			}
			if last, ok := latest[name]; !ok || d.After(last) {
				latest[name] = d
			}
		}

		if hasLocation {
			if locations[name] == nil {
				locations[name] = counter{}
			}
			loc := row[cfg.LocationColumn]
			if loc == "" {
				loc = "Unknown"
			}
			locations[name][loc]++
		}

		if hasLineage {
			if lineages[name] == nil {
				lineages[name] = counter{}
			}
			lineages[name][row["lineage"]]++
		}

		if hasSNPs {
			summary.SNPs = append(summary.SNPs, row["SNPs"])
		}
	}

	for name, summary := range summaries {
		if d, ok := earliest[name]; ok {
			summary.EarliestDate = d.Format("2006-01-02")
		}
		if d, ok := latest[name]; ok {
			summary.LatestDate = d.Format("2006-01-02")
		}
		if c := locations[name]; c != nil {
			summary.Locations = topTenSummary(summary.Total, c)
		}
		if c := lineages[name]; c != nil {
			summary.Lineages = topTenSummary(summary.Total, c)
		}
	}
	return summaries, nil
}

type counter map[string]int

// mostCommon returns the n highest-count entries, ties broken by label so
// the output is stable.
func (c counter) mostCommon(n int) []string {
	labels := make([]string, 0, len(c))
	for label := range c {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(a, b int) bool {
		if c[labels[a]] != c[labels[b]] {
			return c[labels[a]] > c[labels[b]]
		}
		return labels[a] < labels[b]
	})
	if len(labels) > n {
		labels = labels[:n]
	}
	return labels
}

// topTenSummary renders a frequency counter as the report's breakdown
// string: the ten most common categories with their integer percentage,
// categories under 1% dropped, and an Other line carrying the remainder.
// When everything is under 1% the remainder stays at 100; that degenerate
// "Other 100%" output is accepted.
func topTenSummary(total int, counts counter) string {
	summary := ""
	remainder := 100
	for _, label := range counts.mostCommon(10) {
		pcent := 100 * counts[label] / total
		if pcent >= 1 {
			remainder -= pcent
			summary += fmt.Sprintf("%s %d%% <br>", label, pcent)
		}
	}
	summary += fmt.Sprintf("Other %d%% <br>", remainder)
	return summary
}

// backgroundData builds the flat id-keyed mapping embedded in the report
// as one JSON blob. Query rows key by the report column, context rows by
// the background column; whichever of the candidate columns exist in the
// header are carried as values. A duplicate key keeps the later row; that
// overwrite is documented behaviour.
func backgroundData(table *background.Table, cfg *config.Config) (string, error) {
	var columns []string
	for _, col := range []string{cfg.ReportColumn, "lineage", cfg.LocationColumn, cfg.DateColumn} {
		if headerHas(table.Header, col) {
			columns = append(columns, col)
		}
	}
	if err := requireColumns(table.Header, []string{cfg.ReportColumn, cfg.BackgroundColumn}); err != nil {
		return "", err
	}

	data := map[string]map[string]string{}
	for _, row := range table.Rows {
		entry := make(map[string]string, len(columns)+1)
		for _, col := range columns {
			entry[col] = row[col]
		}
		if row["query_boolean"] == "True" {
			entry["Query"] = "True"
			data[row[cfg.ReportColumn]] = entry
		} else {
			entry["Query"] = "False"
			data[row[cfg.BackgroundColumn]] = entry
		}
	}

	blob, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal background data: %w", err)
	}
	return string(blob), nil
}

func project(row background.Row, columns []string) SummaryRow {
	out := make(SummaryRow, len(columns))
	for _, col := range columns {
		out[col] = row[col]
	}
	return out
}

func requireColumns(header, columns []string) error {
	for _, col := range columns {
		if !headerHas(header, col) {
			return fmt.Errorf("metadata has no %q column", col)
		}
	}
	return nil
}

func headerHas(header []string, col string) bool {
	for _, h := range header {
		if h == col {
			return true
		}
	}
	return false
}
