// Stage definitions for the analysis workflow. Every real computation
// (mapping, alignment, catchment finding, SNP visualisation) happens in an
// external tool talked to through files under the run directories.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
	"go.uber.org/zap"
)

// MasterMetadataPath is where the catchment stage leaves the merged
// metadata, the single csv the report aggregation reads.
func MasterMetadataPath(dataOutdir string) string {
	return path.Join(dataOutdir, "master_metadata.csv")
}

// Run drives the whole workflow: alignment, catchment assignment, then the
// per-catchment artifact stages once the catchment count is known. It
// returns the number of catchments found.
func Run(ctx context.Context, cfg *config.Config, dirs *Dirs, set *background.Set, queryMetadata, queryFasta string) (int, error) {
	runner := NewRunner()

	master := MasterMetadataPath(dirs.DataOutdir)
	aligned := path.Join(dirs.Tempdir, "query.aligned.fasta")

	pre := buildAlignmentStages(cfg, dirs, queryFasta, aligned)
	pre = append(pre, buildCatchmentStage(cfg, dirs, set, queryMetadata, aligned, master))
	if err := runner.Run(ctx, pre); err != nil {
		return 0, err
	}

	count, err := CountCatchments(master)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("no catchments were assigned, nothing to report")
	}
	logger.Info("Catchments assigned", zap.Int("count", count))

	if cfg.Sections.Has(config.SectionSNPAlignment) {
		if err := runner.Run(ctx, buildSnipitStages(cfg, dirs, aligned, count)); err != nil {
			return 0, err
		}
	}
	if cfg.Sections.Has(config.SectionTimeline) {
		if err := BuildTimelines(cfg, dirs, master, count); err != nil {
			return 0, err
		}
	}

	return count, nil
}

// buildAlignmentStages maps the passed-QC query sequences to the reference
// and trims/pads them into the analysis window. Skipped when every query
// came from the background (no input fasta to align).
func buildAlignmentStages(cfg *config.Config, dirs *Dirs, queryFasta, aligned string) []Stage {
	if queryFasta == "" {
		return nil
	}
	sam := path.Join(dirs.Tempdir, "query.sam")

	return []Stage{
		{
			Name:    "map_to_reference",
			Command: "minimap2",
			Args: []string{"-a", "-x", "asm20", "--secondary=no",
				cfg.ReferenceFasta, queryFasta, "-o", sam},
			Outputs: []string{sam},
		},
		{
			Name:    "align_trim_pad",
			Command: "gofasta",
			Args: []string{"sam", "toMultiAlign",
				"-s", sam,
				"--trim", "--trimstart", strconv.Itoa(cfg.TrimStart),
				"--trimend", strconv.Itoa(cfg.TrimEnd), "--pad",
				"-o", aligned},
			Outputs: []string{aligned},
		},
	}
}

// buildCatchmentStage places the queries in the background tree, assigns
// every query and its context sequences to a catchment, extracts the
// per-catchment subtrees and writes the merged master metadata.
func buildCatchmentStage(cfg *config.Config, dirs *Dirs, set *background.Set, queryMetadata, aligned, master string) Stage {
	args := []string{"context",
		"--metadata", queryMetadata,
		"--background-metadata", set.CSV,
		"--background-tree", set.Tree,
		"--background-fasta", set.Fasta,
		"--data-column", cfg.DataColumn,
		"--output-metadata", master,
		"--output-catchments", path.Join(dirs.DataOutdir, "catchments"),
	}
	if set.SNPs != "" {
		args = append(args, "--background-snps", set.SNPs)
	}
	if _, err := os.Stat(aligned); err == nil {
		args = append(args, "--query-fasta", aligned)
	}

	return Stage{
		Name:    "find_catchments",
		Command: "jclusterfunk",
		Args:    args,
		Outputs: []string{master},
	}
}

// buildSnipitStages renders one SNP-alignment SVG per catchment.
func buildSnipitStages(cfg *config.Config, dirs *Dirs, aligned string, count int) []Stage {
	stages := make([]Stage, 0, count)
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("catchment_%d", i)
		svg := path.Join(dirs.DataOutdir, "snipit", name+".snipit.svg")
		stages = append(stages, Stage{
			Name:    "snipit_" + name,
			Command: "snipit",
			Args: []string{aligned,
				"-r", cfg.ReferenceFasta,
				"--catchment", name,
				"--format", "svg",
				"-o", strings.TrimSuffix(svg, ".svg")},
			Outputs: []string{svg},
		})
	}
	return stages
}

// CountCatchments reads the master metadata and returns the highest
// catchment ordinal, validating every assignment on the way.
func CountCatchments(metadataPath string) (int, error) {
	f, err := os.Open(metadataPath)
	if err != nil {
		return 0, fmt.Errorf("open master metadata: %w", err)
	}
	defer f.Close()

	table, err := background.ReadTable(f)
	if err != nil {
		return 0, fmt.Errorf("master metadata: %w", err)
	}

	max := 0
	for _, row := range table.Rows {
		name := row["catchment"]
		if name == "" {
			continue
		}
		n, err := ParseCatchmentName(name)
		if err != nil {
			return 0, err
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// ParseCatchmentName extracts the ordinal from a catchment_<n> name.
func ParseCatchmentName(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, "catchment_")
	if !ok {
		return 0, fmt.Errorf("malformed catchment name %q", name)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("malformed catchment name %q", name)
	}
	return n, nil
}
