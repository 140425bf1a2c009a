// Query resolution: turn an input csv, an id string or a metadata search
// into a canonical query list, then reconcile it against the background
// metadata and the optional supplied fasta.

package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/yumlab/krait/internal/util"
	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
	"github.com/yumlab/krait/pkg/fasta"
	"go.uber.org/zap"
)

// Query is one user-submitted sequence under investigation.
type Query struct {
	Name string
	// Extra columns carried over from the input csv.
	Extra map[string]string
}

// Result is the reconciled query set handed to the workflow stage.
type Result struct {
	// Header of the merged metadata, background columns first.
	Header []string
	// One row per resolvable query, query_boolean always "True".
	Rows []background.Row
	// Input fasta records that passed QC, written alongside the metadata.
	PassedFasta []fasta.Record

	FoundInBackground int
	FromInputFasta    int
}

// Read builds the query list from whichever source the config names. A
// from-metadata search is resolved later, against the background, and
// returns no ids here.
func Read(cfg *config.Config) ([]Query, error) {
	switch {
	case cfg.InputCSV != "":
		return readCSV(cfg.InputCSV, cfg.InputColumn)
	case cfg.IDs != "":
		return readIDString(cfg.IDs)
	}
	return nil, nil
}

func readCSV(path, inputColumn string) ([]Query, error) {
	if !util.FileExists(path) {
		return nil, fmt.Errorf("input csv %s not found", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input csv: %w", err)
	}
	defer f.Close()

	table, err := background.ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("input csv %s: %w", path, err)
	}

	colFound := false
	for _, col := range table.Header {
		if col == inputColumn {
			colFound = true
		}
	}
	if !colFound {
		return nil, fmt.Errorf("input csv %s has no %q column", path, inputColumn)
	}

	seen := map[string]struct{}{}
	var queries []Query
	for _, row := range table.Rows {
		id := strings.TrimSpace(row[inputColumn])
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate query id %q in input csv", id)
		}
		seen[id] = struct{}{}

		extra := map[string]string{}
		for col, v := range row {
			if col != inputColumn {
				extra[col] = v
			}
		}
		queries = append(queries, Query{Name: id, Extra: extra})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("input csv %s contains no query ids", path)
	}
	return queries, nil
}

func readIDString(ids string) ([]Query, error) {
	seen := map[string]struct{}{}
	var queries []Query
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate query id %q in id string", id)
		}
		seen[id] = struct{}{}
		queries = append(queries, Query{Name: id})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no query ids in id string %q", ids)
	}
	return queries, nil
}

// Resolve reconciles the query list against the background set and the
// optional input fasta, producing the merged query metadata.
func Resolve(ctx context.Context, cfg *config.Config, set *background.Set) (*Result, error) {

	queries, err := Read(cfg)
	if err != nil {
		return nil, err
	}

	found, header, err := findInBackground(ctx, cfg, set, queries)
	if err != nil {
		return nil, err
	}
	matched := rowsByID(found, cfg.DataColumn)

	// From-metadata searches define the query set entirely from the
	// background, so every hit is a query. The scan order of the
	// background rows is kept so repeated runs merge identically.
	if len(cfg.FromMetadata) > 0 {
		for _, row := range found {
			queries = append(queries, Query{Name: row[cfg.DataColumn]})
		}
	}

	res := &Result{Header: mergedHeader(header)}

	fastaByName, err := loadInputFasta(cfg, queries)
	if err != nil {
		return nil, err
	}

	for _, q := range queries {
		if row, ok := matched[q.Name]; ok {
			res.Rows = append(res.Rows, mergedRow(res.Header, q, row, "background", "Pass"))
			res.FoundInBackground++
			continue
		}
		if rec, ok := fastaByName[q.Name]; ok {
			qc := fasta.QC(rec, cfg.MinLength, cfg.MaxAmbiguity)
			row := mergedRow(res.Header, q, nil, "input_fasta", qc.Status)
			row["seq_length"] = fmt.Sprintf("%d", qc.Length)
			row["n_percent"] = fmt.Sprintf("%.2f", 100*qc.NProportion)
			res.Rows = append(res.Rows, row)
			res.FromInputFasta++
			if qc.Status == "Pass" {
				res.PassedFasta = append(res.PassedFasta, rec)
			} else {
				logger.Warn("Query failed QC", zap.String("id", q.Name), zap.String("reason", qc.Reason))
			}
			continue
		}
		logger.Warn("Query not found in background data or input fasta, dropping", zap.String("id", q.Name))
	}

	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("none of the supplied queries could be matched to background data or input fasta")
	}

	return res, nil
}

// findInBackground matches query ids (or search terms) against the sqlite
// index when one is built, otherwise against a linear scan of the csv.
// Rows come back in scan (or index query) order.
func findInBackground(ctx context.Context, cfg *config.Config, set *background.Set, queries []Query) ([]background.Row, []string, error) {

	var terms []background.SearchTerm
	if len(cfg.FromMetadata) > 0 {
		var err error
		terms, err = background.ParseSearchTerms(cfg.FromMetadata)
		if err != nil {
			return nil, nil, err
		}
	}

	indexPath := background.IndexPath(cfg.Datadir)
	if util.FileExists(indexPath) {
		ix, err := background.OpenIndex(indexPath, cfg.DataColumn)
		if err != nil {
			return nil, nil, err
		}
		defer ix.Close()

		logger.Debug("Using background index", zap.String("path", indexPath))

		var rows []background.Row
		if terms != nil {
			rows, err = ix.Search(ctx, terms)
		} else {
			ids := make([]string, len(queries))
			for i, q := range queries {
				ids[i] = q.Name
			}
			rows, err = ix.Lookup(ctx, ids)
		}
		if err != nil {
			return nil, nil, err
		}
		return rows, ix.Header(), nil
	}

	logger.Debug("No background index, scanning metadata csv", zap.String("path", set.CSV))

	table, err := set.LoadCSV()
	if err != nil {
		return nil, nil, err
	}

	var rows []background.Row
	if terms != nil {
		for _, t := range terms {
			if !headerHas(table.Header, t.Column) {
				return nil, nil, fmt.Errorf("search column %q not in background metadata", t.Column)
			}
		}
		for _, row := range table.Rows {
			if background.Matches(row, terms) {
				rows = append(rows, row)
			}
		}
	} else {
		wanted := map[string]struct{}{}
		for _, q := range queries {
			wanted[q.Name] = struct{}{}
		}
		for _, row := range table.Rows {
			if _, ok := wanted[row[cfg.DataColumn]]; ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, table.Header, nil
}

func loadInputFasta(cfg *config.Config, queries []Query) (map[string]fasta.Record, error) {
	byName := map[string]fasta.Record{}
	if cfg.Fasta == "" {
		return byName, nil
	}

	records, err := fasta.ParseFile(cfg.Fasta)
	if err != nil {
		return nil, err
	}

	known := map[string]struct{}{}
	for _, q := range queries {
		known[q.Name] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := known[rec.Name]; !ok {
			return nil, fmt.Errorf("fasta record %q does not match any query id", rec.Name)
		}
		byName[rec.Name] = rec
	}
	return byName, nil
}

// Columns the pipeline and report stages rely on, appended after the
// background's own columns.
var runColumns = []string{"query_boolean", "source", "qc_status", "catchment", "seq_length", "n_percent"}

func mergedHeader(backgroundHeader []string) []string {
	header := append([]string{}, backgroundHeader...)
	if !headerHas(header, "name") {
		header = append([]string{"name"}, header...)
	}
	for _, col := range runColumns {
		if !headerHas(header, col) {
			header = append(header, col)
		}
	}
	return header
}

func mergedRow(header []string, q Query, bg background.Row, source, qcStatus string) background.Row {
	row := make(background.Row, len(header))
	for _, col := range header {
		row[col] = ""
	}
	for col, v := range bg {
		row[col] = v
	}
	for col, v := range q.Extra {
		if headerHas(header, col) {
			row[col] = v
		}
	}
	row["name"] = q.Name
	row["query_boolean"] = "True"
	row["source"] = source
	row["qc_status"] = qcStatus
	return row
}

func rowsByID(rows []background.Row, dataColumn string) map[string]background.Row {
	byID := make(map[string]background.Row, len(rows))
	for _, row := range rows {
		byID[row[dataColumn]] = row
	}
	return byID
}

func headerHas(header []string, col string) bool {
	for _, h := range header {
		if h == col {
			return true
		}
	}
	return false
}

// WriteOutputs writes the merged query metadata and the passed-QC fasta
// into the run directory, the file interface the workflow stages consume.
func WriteOutputs(res *Result, metadataPath, fastaPath string) error {
	f, err := os.Create(metadataPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", metadataPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(res.Header); err != nil {
		return err
	}
	for _, row := range res.Rows {
		rec := make([]string, len(res.Header))
		for i, col := range res.Header {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", metadataPath, err)
	}

	if len(res.PassedFasta) == 0 {
		return nil
	}
	ff, err := os.Create(fastaPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", fastaPath, err)
	}
	defer ff.Close()
	return fasta.Write(ff, res.PassedFasta)
}
