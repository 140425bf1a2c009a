// Background data handling: the reference metadata, fasta, SNP table and
// phylogenetic tree that queries are reconciled against.

package background

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/yumlab/krait/internal/util"
)

// Set points at the four background files of a data directory.
type Set struct {
	CSV   string
	Fasta string
	SNPs  string // optional
	Tree  string

	DataColumn string
}

// Resolve locates the background files under datadir, letting explicit paths
// override the conventional names. The SNP table is optional; everything
// else must exist.
func Resolve(datadir, csvPath, fastaPath, snpPath, treePath, dataColumn string) (*Set, error) {
	if !util.DirExists(datadir) {
		return nil, fmt.Errorf("background data directory %s not found", datadir)
	}

	s := &Set{
		CSV:        csvPath,
		Fasta:      fastaPath,
		SNPs:       snpPath,
		Tree:       treePath,
		DataColumn: dataColumn,
	}
	if s.CSV == "" {
		s.CSV = path.Join(datadir, "background.csv")
	}
	if s.Fasta == "" {
		s.Fasta = path.Join(datadir, "background.fasta")
	}
	if s.Tree == "" {
		s.Tree = path.Join(datadir, "background.tree")
	}

	for _, p := range []string{s.CSV, s.Fasta, s.Tree} {
		if !util.FileExists(p) {
			return nil, fmt.Errorf("background file %s not found", p)
		}
	}
	if s.SNPs != "" && !util.FileExists(s.SNPs) {
		return nil, fmt.Errorf("background SNP file %s not found", s.SNPs)
	}

	header, err := readHeader(s.CSV)
	if err != nil {
		return nil, err
	}
	if !contains(header, dataColumn) {
		return nil, fmt.Errorf("background metadata %s has no %q column", s.CSV, dataColumn)
	}

	return s, nil
}

// Row is one background metadata record keyed by column name.
type Row map[string]string

// Table is the loaded background metadata with its header order preserved.
type Table struct {
	Header []string
	Rows   []Row
}

// LoadCSV reads the whole background metadata into memory.
func (s *Set) LoadCSV() (*Table, error) {
	f, err := os.Open(s.CSV)
	if err != nil {
		return nil, fmt.Errorf("open background metadata: %w", err)
	}
	defer f.Close()

	return ReadTable(f)
}

// ReadTable reads a header-first CSV into a Table.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// SearchTerm is one from-metadata filter, either an exact match or an
// inclusive range written column=lo:hi.
type SearchTerm struct {
	Column string
	Value  string
	Lo, Hi string
	Range  bool
}

// ParseSearchTerms parses from-metadata arguments of the form column=value
// or column=lo:hi.
func ParseSearchTerms(terms []string) ([]SearchTerm, error) {
	var parsed []SearchTerm
	for _, term := range terms {
		col, val, ok := strings.Cut(term, "=")
		if !ok || col == "" || val == "" {
			return nil, fmt.Errorf("invalid search term %q, expected column=value", term)
		}
		st := SearchTerm{Column: col}
		if lo, hi, isRange := strings.Cut(val, ":"); isRange {
			st.Range = true
			st.Lo, st.Hi = lo, hi
		} else {
			st.Value = val
		}
		parsed = append(parsed, st)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("empty from-metadata search")
	}
	return parsed, nil
}

// Matches reports whether the row satisfies every term.
func Matches(row Row, terms []SearchTerm) bool {
	for _, t := range terms {
		v, ok := row[t.Column]
		if !ok {
			return false
		}
		if t.Range {
			if v < t.Lo || v > t.Hi {
				return false
			}
		} else if v != t.Value {
			return false
		}
	}
	return true
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return header, nil
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
