// Inlining of per-catchment artifact files produced by the workflow stage.
// The report is a single self-contained HTML file, so trees, SVGs and
// timelines are embedded as text rather than linked.

package report

import (
	"fmt"
	"os"
	"path"
	"strings"
)

func inlineTrees(doc *Document, dataOutdir string) error {
	for i := range doc.Catchments {
		c := &doc.Catchments[i]
		text, err := inlineFile(path.Join(dataOutdir, "catchments", c.Name+".tree"))
		if err != nil {
			return fmt.Errorf("tree for %s: %w", c.Name, err)
		}
		c.Newick = strings.TrimRight(text, "\n")
	}
	return nil
}

func inlineSnipit(doc *Document, dataOutdir string) error {
	for i := range doc.Catchments {
		c := &doc.Catchments[i]
		text, err := inlineFile(path.Join(dataOutdir, "snipit", c.Name+".snipit.svg"))
		if err != nil {
			return fmt.Errorf("snipit svg for %s: %w", c.Name, err)
		}
		c.SnipitSVG = text
	}
	return nil
}

func inlineTimelines(doc *Document, dataOutdir string) error {
	for i := range doc.Catchments {
		c := &doc.Catchments[i]
		text, err := inlineFile(path.Join(dataOutdir, "timeline", c.Name+".timeline.json"))
		if err != nil {
			return fmt.Errorf("timeline for %s: %w", c.Name, err)
		}
		c.TimelineJSON = text
	}
	return nil
}

// inlineFile reads a whole artifact, stripping the trailing newline of
// every line and rejoining, so the embedded text is newline-normalised.
// A missing artifact is an error; there is no partial content fallback.
func inlineFile(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		b.WriteString(strings.TrimRight(line, "\r\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}
