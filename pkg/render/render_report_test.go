package render

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/config"
	"github.com/yumlab/krait/pkg/report"
	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(zapcore.ErrorLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testDocument() *report.Document {
	return &report.Document{
		QuerySummary: []report.SummaryRow{{"name": "Q1", "lineage": "B.1"}},
		Catchments: []report.CatchmentData{
			{
				Catchment: report.Catchment{ID: 1, Name: "catchment_1"},
				Summary: &report.CatchmentSummary{
					Total:        12,
					EarliestDate: "2020-01-05",
					LatestDate:   "2020-06-10",
					Locations:    "Scotland 60% <br>Other 40% <br>",
				},
				Newick:    "(A:1,B:2);",
				SnipitSVG: "<svg></svg>",
			},
		},
		BackgroundData: `{"Q1":{"Query":"True"}}`,
	}
}

func testRenderConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.IDs = "Q1"
	require.NoError(t, cfg.Finalize())
	return cfg
}

func TestWriteReport(t *testing.T) {
	cfg := testRenderConfig(t)
	out := path.Join(t.TempDir(), "report.html")

	require.NoError(t, WriteReport(out, "1.0.2", testDocument(), cfg))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "Catchment 1")
	assert.Contains(t, html, "(A:1,B:2);")
	assert.Contains(t, html, "<svg></svg>")
	assert.Contains(t, html, "12 sequences")
	assert.Contains(t, html, "2020-01-05")
	assert.Contains(t, html, `{"Q1":{"Query":"True"}}`)
	assert.Contains(t, html, "krait 1.0.2")
}

func TestWriteReportEmptySections(t *testing.T) {
	cfg := testRenderConfig(t)
	out := path.Join(t.TempDir(), "report.html")

	doc := &report.Document{
		Catchments: []report.CatchmentData{
			{Catchment: report.Catchment{ID: 1, Name: "catchment_1"}},
		},
	}
	require.NoError(t, WriteReport(out, "1.0.2", doc, cfg))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	html := string(data)

	// Gated-off sections leave no trace rather than broken markup.
	assert.Contains(t, html, "Catchment 1")
	assert.NotContains(t, html, "<h3>Tree</h3>")
	assert.NotContains(t, html, "snipit")
}

func TestWriteReportBadCustomTemplateParse(t *testing.T) {
	cfg := testRenderConfig(t)
	cfg.ReportTemplate = path.Join(t.TempDir(), "broken.tmpl")
	require.NoError(t, os.WriteFile(cfg.ReportTemplate, []byte("{{ unterminated"), 0o644))

	err := WriteReport(path.Join(t.TempDir(), "report.html"), "1.0.2", testDocument(), cfg)
	require.Error(t, err)
}

func TestWriteReportPartialOnExecuteFailure(t *testing.T) {
	cfg := testRenderConfig(t)
	dir := t.TempDir()
	cfg.ReportTemplate = path.Join(dir, "custom.tmpl")
	// Parses fine, fails at execution after emitting a prefix.
	require.NoError(t, os.WriteFile(cfg.ReportTemplate,
		[]byte("PREFIX {{ .Document.NoSuchField }} SUFFIX"), 0o644))

	out := path.Join(dir, "report.html")
	require.NoError(t, WriteReport(out, "1.0.2", testDocument(), cfg))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PREFIX")
	assert.NotContains(t, string(data), "SUFFIX")
}
