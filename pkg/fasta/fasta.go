// Minimal FASTA reading and sequence quality control for query input files.

package fasta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type Record struct {
	Name     string
	Sequence string
}

// Parse reads FASTA records from r. The record name is the header up to the
// first whitespace, matching how query ids are written in the metadata.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	var current *Record
	var seq strings.Builder

	flush := func() {
		if current != nil {
			current.Sequence = seq.String()
			records = append(records, *current)
			seq.Reset()
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			flush()
			name := strings.Fields(strings.TrimPrefix(line, ">"))
			if len(name) == 0 {
				return nil, fmt.Errorf("line %d: empty fasta header", lineno)
			}
			current = &Record{Name: name[0]}
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: sequence data before first fasta header", lineno)
		}
		seq.WriteString(strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	return records, nil
}

// ParseFile reads all records from a FASTA file on disk.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta %s: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse fasta %s: %w", path, err)
	}
	return records, nil
}

// QCResult classifies one input sequence against the run thresholds.
type QCResult struct {
	Status      string // "Pass" or "Fail"
	Reason      string
	Length      int
	NProportion float64
}

// QC checks sequence length and ambiguity proportion. A base is ambiguous if
// it is not one of A, C, G, T.
func QC(rec Record, minLength int, maxAmbiguity float64) QCResult {
	length := len(rec.Sequence)

	ambiguous := 0
	for _, b := range []byte(rec.Sequence) {
		switch b {
		case 'A', 'C', 'G', 'T':
		default:
			ambiguous++
		}
	}

	var prop float64
	if length > 0 {
		prop = float64(ambiguous) / float64(length)
	}

	res := QCResult{Status: "Pass", Length: length, NProportion: prop}
	if length < minLength {
		res.Status = "Fail"
		res.Reason = fmt.Sprintf("sequence length %d below minimum %d", length, minLength)
		return res
	}
	if prop > maxAmbiguity {
		res.Status = "Fail"
		res.Reason = fmt.Sprintf("ambiguity proportion %.2f above maximum %.2f", prop, maxAmbiguity)
	}
	return res
}

// Write writes records in FASTA format, wrapped at 70 columns.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, ">%s\n", rec.Name); err != nil {
			return err
		}
		seq := rec.Sequence
		for len(seq) > 70 {
			if _, err := fmt.Fprintln(bw, seq[:70]); err != nil {
				return err
			}
			seq = seq[70:]
		}
		if _, err := fmt.Fprintln(bw, seq); err != nil {
			return err
		}
	}
	return bw.Flush()
}
