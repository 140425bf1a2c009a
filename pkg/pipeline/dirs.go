// Run directory setup: the output directory, the temp working directory and
// the data directory the per-catchment artifacts land in.

package pipeline

import (
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/yumlab/krait/internal/util"
	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/config"
	"go.uber.org/zap"
)

// Dirs holds the resolved run directories.
type Dirs struct {
	Outdir  string
	Tempdir string
	// DataOutdir receives the artifact tree (catchments/, snipit/,
	// timeline/). It lives in Outdir when output-data is set, otherwise
	// in the temp directory.
	DataOutdir string
}

// Setup resolves and creates the run directories, mutating cfg so later
// stages find DataOutdir in one place.
func Setup(cfg *config.Config) (*Dirs, error) {
	outdir := cfg.Outdir
	if outdir == "" {
		outdir = fmt.Sprintf("%s-%s", cfg.OutputPrefix, cfg.Date)
	} else if cfg.Datestamp {
		outdir = fmt.Sprintf("%s-%s", outdir, cfg.Date)
	}

	if util.DirExists(outdir) {
		if cfg.Overwrite {
			if err := os.RemoveAll(outdir); err != nil {
				return nil, fmt.Errorf("overwrite %s: %w", outdir, err)
			}
		} else {
			outdir = nextFree(outdir)
		}
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outdir, err)
	}

	tempRoot := cfg.Tempdir
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	tempdir := path.Join(tempRoot, "krait-"+uuid.New().String())
	if cfg.NoTemp {
		// Keep every intermediate next to the results.
		tempdir = path.Join(outdir, "intermediates")
	}
	if err := os.MkdirAll(tempdir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory %s: %w", tempdir, err)
	}

	dataOutdir := tempdir
	if cfg.OutputData {
		dataOutdir = path.Join(outdir, "data")
	}
	for _, sub := range []string{"catchments", "snipit", "timeline"} {
		if err := os.MkdirAll(path.Join(dataOutdir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	cfg.Outdir = outdir
	cfg.Tempdir = tempdir
	cfg.DataOutdir = dataOutdir

	logger.Info("Run directories ready",
		zap.String("outdir", outdir),
		zap.String("tempdir", tempdir),
		zap.String("data", dataOutdir))

	return &Dirs{Outdir: outdir, Tempdir: tempdir, DataOutdir: dataOutdir}, nil
}

// Cleanup removes the temp directory unless the run asked to keep it.
func (d *Dirs) Cleanup(cfg *config.Config) {
	if cfg.NoTemp {
		return
	}
	if err := os.RemoveAll(d.Tempdir); err != nil {
		logger.Warn("Could not remove temp directory", zap.String("dir", d.Tempdir), zap.Error(err))
	}
}

// nextFree appends an increasing number until the directory name is unused.
func nextFree(dir string) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", dir, i)
		if !util.DirExists(candidate) {
			return candidate
		}
	}
}
