// Timeline construction: one JSON file per catchment with the dated
// sequences the report's timeline section plots.

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
)

// TimelineEntry is one dot on a catchment timeline.
type TimelineEntry struct {
	Name  string `json:"name"`
	Date  string `json:"date"`
	Query bool   `json:"query"`
}

// TimelinePath is the artifact location for one catchment.
func TimelinePath(dataOutdir, catchmentName string) string {
	return path.Join(dataOutdir, "timeline", catchmentName+".timeline.json")
}

// BuildTimelines writes a timeline JSON per catchment from the master
// metadata. Rows without a parseable date are left off the timeline; an
// actually malformed date on a dated row is an error.
func BuildTimelines(cfg *config.Config, dirs *Dirs, metadataPath string, count int) error {
	f, err := os.Open(metadataPath)
	if err != nil {
		return fmt.Errorf("open master metadata: %w", err)
	}
	defer f.Close()

	table, err := background.ReadTable(f)
	if err != nil {
		return fmt.Errorf("master metadata: %w", err)
	}

	dated := false
	for _, col := range table.Header {
		if col == cfg.DateColumn {
			dated = true
		}
	}

	byCatchment := make(map[string][]TimelineEntry)
	if dated {
		for _, row := range table.Rows {
			date := row[cfg.DateColumn]
			if date == "" || row["catchment"] == "" {
				continue
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("row %q: bad %s value %q", row["name"], cfg.DateColumn, date)
			}
			byCatchment[row["catchment"]] = append(byCatchment[row["catchment"]], TimelineEntry{
				Name:  entryName(row, cfg),
				Date:  date,
				Query: row["query_boolean"] == "True",
			})
		}
	}

	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("catchment_%d", i)
		entries := byCatchment[name]
		sort.Slice(entries, func(a, b int) bool { return entries[a].Date < entries[b].Date })
		if entries == nil {
			entries = []TimelineEntry{}
		}

		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal timeline for %s: %w", name, err)
		}
		if err := os.WriteFile(TimelinePath(dirs.DataOutdir, name), data, 0o644); err != nil {
			return fmt.Errorf("write timeline for %s: %w", name, err)
		}
	}
	return nil
}

func entryName(row background.Row, cfg *config.Config) string {
	if row["query_boolean"] == "True" && row[cfg.ReportColumn] != "" {
		return row[cfg.ReportColumn]
	}
	if row[cfg.BackgroundColumn] != "" {
		return row[cfg.BackgroundColumn]
	}
	return row["name"]
}
