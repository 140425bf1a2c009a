// Render the final HTML report from the aggregated document.

package render

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/config"
	"github.com/yumlab/krait/pkg/report"
	"go.uber.org/zap"
)

var report_page_template *template.Template

func init() {
	mainTmpl := `
	<!DOCTYPE html>
	<html>
	<head>
		<meta charset="utf-8">
		<title>krait report {{ .Date }}</title>
	</head>
	<body>
		<h1>Cluster investigation report</h1>
		<p>Generated {{ .Date }} by krait {{ .Version }}</p>
		{{ if .Document.QuerySummary }}
			{{ template "summary_tables" .Document }}
		{{ end }}
		{{ range $c := .Document.Catchments }}
			<h2>Catchment {{ $c.ID }}</h2>
			{{ if $c.Summary }}{{ template "catchment_summary" $c }}{{ end }}
			{{ if $c.Newick }}
				<h3>Tree</h3>
				<pre class="newick" id="tree_{{ $c.ID }}">{{ $c.Newick }}</pre>
			{{ end }}
			{{ if $c.SnipitSVG }}
				<h3>SNPs</h3>
				<div class="snipit">{{ $c.SnipitSVG }}</div>
			{{ end }}
			{{ if $c.TimelineJSON }}
				<h3>Timeline</h3>
				<script id="timeline_{{ $c.ID }}" type="application/json">{{ $c.TimelineJSON }}</script>
			{{ end }}
		{{ end }}
		{{ if .Document.BackgroundData }}
			<script id="background_data" type="application/json">{{ .Document.BackgroundData }}</script>
		{{ end }}
	</body>
	</html>`

	summaryTablesTmpl := `
	{{ define "summary_tables" }}
		<h2>Queries</h2>
		<table border="1">
		{{ range $row := .QuerySummary }}
			<tr>{{ range $col, $v := $row }}<td>{{ $v }}</td>{{ end }}</tr>
		{{ end }}
		</table>
		{{ if .FastaSummaryPass }}
			<h3>Supplied sequences passing QC</h3>
			<table border="1">
			{{ range $row := .FastaSummaryPass }}
				<tr>{{ range $col, $v := $row }}<td>{{ $v }}</td>{{ end }}</tr>
			{{ end }}
			</table>
		{{ end }}
		{{ if .FastaSummaryFail }}
			<h3>Supplied sequences failing QC</h3>
			<table border="1">
			{{ range $row := .FastaSummaryFail }}
				<tr>{{ range $col, $v := $row }}<td>{{ $v }}</td>{{ end }}</tr>
			{{ end }}
			</table>
		{{ end }}
	{{ end }}`

	catchmentSummaryTmpl := `
	{{ define "catchment_summary" }}
		<div>
			<p>{{ .Summary.Total }} sequences in this catchment.</p>
			{{ if .Summary.EarliestDate }}
				<p>Sampled between {{ .Summary.EarliestDate }} and {{ .Summary.LatestDate }}.</p>
			{{ end }}
			{{ if .Summary.Locations }}<p>Locations: {{ .Summary.Locations }}</p>{{ end }}
			{{ if .Summary.Lineages }}<p>Lineages: {{ .Summary.Lineages }}</p>{{ end }}
		</div>
	{{ end }}`

	funcMap := template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"upper": strings.ToUpper,
		"eqs":   func(a, b string) bool { return a == b },
	}

	report_page_template = template.New("report_page").Funcs(funcMap)
	report_page_template = template.Must(report_page_template.Parse(mainTmpl))
	report_page_template = template.Must(report_page_template.Parse(summaryTablesTmpl))
	report_page_template = template.Must(report_page_template.Parse(catchmentSummaryTmpl))
}

// Context is what the templates see.
type Context struct {
	Date     string
	Version  string
	Document *report.Document
	Config   *config.Config
}

// WriteReport renders the document to outPath. A template execution error
// is logged rather than returned and the partial buffer is still written,
// so a broken custom template leaves behind whatever rendered before the
// failure. Everything else stays fail-fast.
func WriteReport(outPath, version string, doc *report.Document, cfg *config.Config) error {
	tmpl := report_page_template
	if cfg.ReportTemplate != "" {
		custom, err := template.ParseFiles(cfg.ReportTemplate)
		if err != nil {
			return fmt.Errorf("parse report template %s: %w", cfg.ReportTemplate, err)
		}
		tmpl = custom
	}

	ctx := Context{
		Date:     cfg.Date,
		Version:  version,
		Document: doc,
		Config:   cfg,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		logger.Error("Report template failed, writing partial output",
			zap.String("template", tmpl.Name()),
			zap.Error(err))
	}

	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", outPath, err)
	}
	logger.Info("Report written", zap.String("path", outPath))
	return nil
}
