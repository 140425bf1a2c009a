package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every option of a run with named, typed fields. It is built
// in three layers: Default(), then an optional yaml file, then command line
// flags on top.
type Config struct {
	// Input options
	InputCSV     string   `yaml:"input_csv"`
	InputColumn  string   `yaml:"input_column"`
	IDs          string   `yaml:"ids"`
	Fasta        string   `yaml:"fasta"`
	MaxAmbiguity float64  `yaml:"max_ambiguity"`
	MinLength    int      `yaml:"min_length"`
	FromMetadata []string `yaml:"from_metadata"`

	// Background data options
	Datadir         string `yaml:"datadir"`
	BackgroundCSV   string `yaml:"background_csv"`
	BackgroundSNPs  string `yaml:"background_snps"`
	BackgroundFasta string `yaml:"background_fasta"`
	BackgroundTree  string `yaml:"background_tree"`
	DataColumn      string `yaml:"data_column"`
	FastaColumn     string `yaml:"fasta_column"`

	// Output options
	Outdir       string `yaml:"outdir"`
	OutputPrefix string `yaml:"output_prefix"`
	Datestamp    bool   `yaml:"datestamp"`
	Overwrite    bool   `yaml:"overwrite"`
	OutputData   bool   `yaml:"output_data"`
	Tempdir      string `yaml:"tempdir"`
	NoTemp       bool   `yaml:"no_temp"`

	// Analysis options
	TrimStart      int    `yaml:"trim_start"`
	TrimEnd        int    `yaml:"trim_end"`
	ReferenceFasta string `yaml:"reference_fasta"`

	// Report options
	TableContent      []string `yaml:"table_content"`
	FastaTableContent []string `yaml:"fasta_table_content"`
	ReportContent     string   `yaml:"report_content"`
	DateColumn        string   `yaml:"date_column"`
	LocationColumn    string   `yaml:"location_column"`
	ReportColumn      string   `yaml:"report_column"`
	BackgroundColumn  string   `yaml:"background_column"`
	ReportTemplate    string   `yaml:"report_template"`
	Date              string   `yaml:"date"`

	// Misc
	Threads int  `yaml:"threads"`
	Verbose bool `yaml:"verbose"`

	// Run state, filled in by the pipeline rather than the user.
	CatchmentCount int    `yaml:"-"`
	DataOutdir     string `yaml:"-"`

	// Parsed report content selector.
	Sections SectionSet `yaml:"-"`
}

// Default returns a config with every documented default filled in.
func Default() *Config {
	return &Config{
		InputColumn:       "name",
		MaxAmbiguity:      0.5,
		MinLength:         20000,
		DataColumn:        "sequence_name",
		OutputPrefix:      "krait",
		TrimStart:         265,
		TrimEnd:           29674,
		TableContent:      []string{"name", "source", "lineage", "sample_date", "catchment"},
		FastaTableContent: []string{"name", "seq_length", "n_percent", "qc_status"},
		ReportContent:     "12345",
		DateColumn:        "sample_date",
		LocationColumn:    "country",
		ReportColumn:      "name",
		BackgroundColumn:  "sequence_name",
		Date:              time.Now().Format("2006-01-02"),
		Threads:           1,
	}
}

// LoadYAML overlays the yaml file at path onto c. Unknown keys are rejected
// so a misspelt option fails loudly instead of silently using the default.
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return nil
}

// Finalize parses derived fields and checks values. Call after all layers
// have been applied.
func (c *Config) Finalize() error {
	sections, err := ParseSections(c.ReportContent)
	if err != nil {
		return err
	}
	c.Sections = sections

	if c.MaxAmbiguity < 0 || c.MaxAmbiguity > 1 {
		return fmt.Errorf("max ambiguity must be between 0 and 1, got %g", c.MaxAmbiguity)
	}
	if c.MinLength <= 0 {
		return fmt.Errorf("min length must be positive, got %d", c.MinLength)
	}
	if c.TrimStart < 0 || c.TrimEnd <= c.TrimStart {
		return fmt.Errorf("trim window %d-%d is not a valid genome range", c.TrimStart, c.TrimEnd)
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if _, err := time.Parse("2006-01-02", c.Date); err != nil {
		return fmt.Errorf("report date %q is not ISO format (YYYY-MM-DD)", c.Date)
	}
	if c.FastaColumn == "" {
		c.FastaColumn = c.DataColumn
	}

	return c.checkQuerySource()
}

// Exactly one way of naming the queries must be given.
func (c *Config) checkQuerySource() error {
	sources := 0
	if c.InputCSV != "" {
		sources++
	}
	if c.IDs != "" {
		sources++
	}
	if len(c.FromMetadata) > 0 {
		sources++
	}
	switch {
	case sources == 0:
		return fmt.Errorf("no query source given: provide an input csv, an id string or a from-metadata search")
	case sources > 1:
		return fmt.Errorf("multiple query sources given: provide only one of input csv, id string or from-metadata search")
	}
	return nil
}
