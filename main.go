package main

import (
	"fmt"
	"os"
	"path"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
	"github.com/yumlab/krait/pkg/pipeline"
	"github.com/yumlab/krait/pkg/query"
	"github.com/yumlab/krait/pkg/render"
	"github.com/yumlab/krait/pkg/report"
)

const VERSION = "1.0.2"

// Command line values; only flags the user actually set override the
// config file, so the zero values here never clobber yaml settings.
var (
	flagConfig string
	flags      = config.Default()
)

var rootCmd = &cobra.Command{
	Use:     "krait",
	Short:   "Phylogenetic cluster investigation reports",
	Version: VERSION,
	Long: `krait takes a set of query sequence ids, places them against a large
background phylogeny, groups them into catchments and renders an HTML
report summarising each catchment.

	krait -c config.yaml
	krait -i input.csv [options]
	krait --ids EDB3588,EDB3589 [options]
	krait -fm country=Edinburgh -fm sample_date=2020-03-01:2020-04-01`,
	SilenceUsage: true,
	RunE:         runPipeline,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the sqlite index over the background metadata",
	Long: `Builds <datadir>/background.db from the background metadata csv.
Runs with an index resolve queries without scanning the whole csv; rebuild
it whenever the background data changes.`,
	SilenceUsage: true,
	RunE:         runIndex,
}

func init() {
	f := rootCmd.Flags()

	// Input options
	f.StringVarP(&flagConfig, "config", "c", "", "Input config file in yaml format; all options can be set there")
	f.StringVarP(&flags.InputCSV, "input-csv", "i", "", "Input csv file with one query id per row")
	f.StringVar(&flags.InputColumn, "input-column", flags.InputColumn, "Column in the input csv holding query ids")
	f.StringVar(&flags.IDs, "ids", "", "Comma-separated query id string, e.g. EDB3588,EDB3589")
	f.StringVarP(&flags.Fasta, "fasta", "f", "", "Optional fasta file; record ids must match query ids")
	f.Float64VarP(&flags.MaxAmbiguity, "max-ambiguity", "n", flags.MaxAmbiguity, "Maximum proportion of ambiguous bases allowed")
	f.IntVarP(&flags.MinLength, "min-length", "l", flags.MinLength, "Minimum query length allowed")
	f.StringArrayVar(&flags.FromMetadata, "from-metadata", nil, "Background metadata search terms, column=value or column=lo:hi")

	// Background data options
	f.StringVarP(&flags.Datadir, "datadir", "d", "", "Directory containing the background data files (default $KRAIT_DATA)")
	f.StringVar(&flags.BackgroundCSV, "background-csv", "", "Custom background metadata csv")
	f.StringVar(&flags.BackgroundSNPs, "background-snps", "", "Optional background SNP file")
	f.StringVar(&flags.BackgroundFasta, "background-fasta", "", "Custom background fasta")
	f.StringVar(&flags.BackgroundTree, "background-tree", "", "Custom background tree")
	f.StringVar(&flags.DataColumn, "data-column", flags.DataColumn, "Column in the background metadata matched against query ids")
	f.StringVar(&flags.FastaColumn, "fasta-column", "", "Column matching background fasta headers (default --data-column)")

	// Output options
	f.StringVarP(&flags.Outdir, "outdir", "o", "", "Output directory (default <prefix>-<date>)")
	f.StringVarP(&flags.OutputPrefix, "output-prefix", "p", flags.OutputPrefix, "Prefix of the output directory and report name")
	f.BoolVar(&flags.Datestamp, "datestamp", false, "Append the date to --outdir")
	f.BoolVar(&flags.Overwrite, "overwrite", false, "Overwrite the output directory instead of numbering a new one")
	f.BoolVar(&flags.OutputData, "output-data", false, "Keep intermediate data files in the output directory")
	f.StringVar(&flags.Tempdir, "tempdir", "", "Where temp files go (default $TMPDIR)")
	f.BoolVar(&flags.NoTemp, "no-temp", false, "Keep all intermediate files next to the results")

	// Analysis options
	f.IntVar(&flags.TrimStart, "trim-start", flags.TrimStart, "Genome position alignments are trimmed and padded to")
	f.IntVar(&flags.TrimEnd, "trim-end", flags.TrimEnd, "Genome position alignments are trimmed and padded from")
	f.StringVarP(&flags.ReferenceFasta, "reference-fasta", "r", "", "Custom reference genome to map against")

	// Report options
	f.StringVar(&flags.ReportContent, "report-content", flags.ReportContent, "Report sections to generate, digits 1-7")
	f.StringVar(&flags.ReportTemplate, "report-template", "", "Custom report template file")
	f.StringVar(&flags.DateColumn, "date-column", flags.DateColumn, "Metadata column holding sample dates")
	f.StringVar(&flags.LocationColumn, "location-column", flags.LocationColumn, "Metadata column holding sample locations")
	f.StringVar(&flags.ReportColumn, "report-column", flags.ReportColumn, "Column used to name queries in the report")
	f.StringVar(&flags.BackgroundColumn, "background-column", flags.BackgroundColumn, "Column used to key background rows in the report")

	// Misc
	f.IntVarP(&flags.Threads, "threads", "t", flags.Threads, "Number of threads passed to the external tools")
	f.BoolVar(&flags.Verbose, "verbose", false, "Print lots of stuff to screen")

	indexCmd.Flags().StringVarP(&flags.Datadir, "datadir", "d", "", "Directory containing the background data files (default $KRAIT_DATA)")
	indexCmd.Flags().StringVar(&flags.BackgroundCSV, "background-csv", "", "Custom background metadata csv")
	indexCmd.Flags().StringVar(&flags.DataColumn, "data-column", flags.DataColumn, "Column in the background metadata matched against query ids")

	rootCmd.AddCommand(indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// assemble builds the run config: defaults, then the yaml file, then only
// the flags the user set on top.
func assemble(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		if err := cfg.LoadYAML(flagConfig); err != nil {
			return nil, err
		}
	}
	overlayChanged(cmd, cfg)

	if cfg.Datadir == "" {
		cfg.Datadir = datadirFromEnv()
	}
	return cfg, nil
}

func datadirFromEnv() string {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env found, using local environment")
	}
	datadir := os.Getenv("KRAIT_DATA")
	if datadir == "" {
		logger.Warn("No local environment (KRAIT_DATA), using default value (./data)")
		datadir = "./data"
	}
	return datadir
}

// overlayChanged copies a flag value onto cfg only when the user set it.
func overlayChanged(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("input-csv", func() { cfg.InputCSV = flags.InputCSV })
	set("input-column", func() { cfg.InputColumn = flags.InputColumn })
	set("ids", func() { cfg.IDs = flags.IDs })
	set("fasta", func() { cfg.Fasta = flags.Fasta })
	set("max-ambiguity", func() { cfg.MaxAmbiguity = flags.MaxAmbiguity })
	set("min-length", func() { cfg.MinLength = flags.MinLength })
	set("from-metadata", func() { cfg.FromMetadata = flags.FromMetadata })
	set("datadir", func() { cfg.Datadir = flags.Datadir })
	set("background-csv", func() { cfg.BackgroundCSV = flags.BackgroundCSV })
	set("background-snps", func() { cfg.BackgroundSNPs = flags.BackgroundSNPs })
	set("background-fasta", func() { cfg.BackgroundFasta = flags.BackgroundFasta })
	set("background-tree", func() { cfg.BackgroundTree = flags.BackgroundTree })
	set("data-column", func() { cfg.DataColumn = flags.DataColumn })
	set("fasta-column", func() { cfg.FastaColumn = flags.FastaColumn })
	set("outdir", func() { cfg.Outdir = flags.Outdir })
	set("output-prefix", func() { cfg.OutputPrefix = flags.OutputPrefix })
	set("datestamp", func() { cfg.Datestamp = flags.Datestamp })
	set("overwrite", func() { cfg.Overwrite = flags.Overwrite })
	set("output-data", func() { cfg.OutputData = flags.OutputData })
	set("tempdir", func() { cfg.Tempdir = flags.Tempdir })
	set("no-temp", func() { cfg.NoTemp = flags.NoTemp })
	set("trim-start", func() { cfg.TrimStart = flags.TrimStart })
	set("trim-end", func() { cfg.TrimEnd = flags.TrimEnd })
	set("reference-fasta", func() { cfg.ReferenceFasta = flags.ReferenceFasta })
	set("report-content", func() { cfg.ReportContent = flags.ReportContent })
	set("report-template", func() { cfg.ReportTemplate = flags.ReportTemplate })
	set("date-column", func() { cfg.DateColumn = flags.DateColumn })
	set("location-column", func() { cfg.LocationColumn = flags.LocationColumn })
	set("report-column", func() { cfg.ReportColumn = flags.ReportColumn })
	set("background-column", func() { cfg.BackgroundColumn = flags.BackgroundColumn })
	set("threads", func() { cfg.Threads = flags.Threads })
	set("verbose", func() { cfg.Verbose = flags.Verbose })
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := logger.InitLogger(logger.LevelFor(flags.Verbose)); err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := assemble(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Finalize(); err != nil {
		return err
	}

	logger.Info("Start:", zap.String("Version", VERSION))

	set, err := background.Resolve(cfg.Datadir, cfg.BackgroundCSV, cfg.BackgroundFasta,
		cfg.BackgroundSNPs, cfg.BackgroundTree, cfg.DataColumn)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	res, err := query.Resolve(ctx, cfg, set)
	if err != nil {
		return err
	}
	logger.Info("Queries resolved",
		zap.Int("background", res.FoundInBackground),
		zap.Int("input_fasta", res.FromInputFasta))

	dirs, err := pipeline.Setup(cfg)
	if err != nil {
		return err
	}
	defer dirs.Cleanup(cfg)

	queryMetadata := path.Join(dirs.Tempdir, "query_metadata.csv")
	queryFasta := ""
	if len(res.PassedFasta) > 0 {
		queryFasta = path.Join(dirs.Tempdir, "query.fasta")
	}
	if err := query.WriteOutputs(res, queryMetadata, queryFasta); err != nil {
		return err
	}

	count, err := pipeline.Run(ctx, cfg, dirs, set, queryMetadata, queryFasta)
	if err != nil {
		return err
	}
	cfg.CatchmentCount = count

	doc, err := report.Aggregate(pipeline.MasterMetadataPath(cfg.DataOutdir), cfg)
	if err != nil {
		return err
	}

	reportPath := path.Join(dirs.Outdir, fmt.Sprintf("%s.html", cfg.OutputPrefix))
	return render.WriteReport(reportPath, VERSION, doc, cfg)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := logger.InitLogger(logger.LevelFor(flags.Verbose)); err != nil {
		return err
	}
	defer logger.Sync()

	datadir := flags.Datadir
	if datadir == "" {
		datadir = datadirFromEnv()
	}

	set, err := background.Resolve(datadir, flags.BackgroundCSV, "", "", "", flags.DataColumn)
	if err != nil {
		return err
	}

	dbPath := background.IndexPath(datadir)
	n, err := set.BuildIndex(cmd.Context(), dbPath)
	if err != nil {
		return err
	}
	logger.Info("Background index built", zap.String("path", dbPath), zap.Int("rows", n))
	return nil
}
