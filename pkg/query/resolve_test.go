package query

import (
	"context"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yumlab/krait/logger"
	"github.com/yumlab/krait/pkg/background"
	"github.com/yumlab/krait/pkg/config"
	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(zapcore.ErrorLevel); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const backgroundCSV = `sequence_name,lineage,country,sample_date
SEQ001,B.1,Scotland,2020-03-01
SEQ002,B.1.1,England,2020-03-15
SEQ003,B.2,Wales,2020-04-01
`

func testBackground(t *testing.T) (*config.Config, *background.Set) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(path.Join(dir, "background.csv"), []byte(backgroundCSV), 0o644))
	require.NoError(t, os.WriteFile(path.Join(dir, "background.fasta"), []byte(">SEQ001\nACGT\n"), 0o644))
	require.NoError(t, os.WriteFile(path.Join(dir, "background.tree"), []byte("(SEQ001,SEQ002);\n"), 0o644))

	cfg := config.Default()
	cfg.Datadir = dir
	cfg.MinLength = 4
	cfg.MaxAmbiguity = 0.5

	set, err := background.Resolve(dir, "", "", "", "", cfg.DataColumn)
	require.NoError(t, err)
	return cfg, set
}

func TestReadIDString(t *testing.T) {
	cfg := config.Default()
	cfg.IDs = "SEQ001, SEQ002,,SEQ003"

	queries, err := Read(cfg)
	require.NoError(t, err)
	require.Len(t, queries, 3)
	assert.Equal(t, "SEQ001", queries[0].Name)
	assert.Equal(t, "SEQ003", queries[2].Name)
}

func TestReadIDStringDuplicate(t *testing.T) {
	cfg := config.Default()
	cfg.IDs = "SEQ001,SEQ001"

	_, err := Read(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	p := path.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(p, []byte("name,note\nSEQ001,first\n,\nSEQ999,second\n"), 0o644))

	cfg := config.Default()
	cfg.InputCSV = p

	queries, err := Read(cfg)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "SEQ001", queries[0].Name)
	assert.Equal(t, "first", queries[0].Extra["note"])
}

func TestReadCSVMissingColumn(t *testing.T) {
	dir := t.TempDir()
	p := path.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(p, []byte("id\nSEQ001\n"), 0o644))

	cfg := config.Default()
	cfg.InputCSV = p

	_, err := Read(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"name"`)
}

func TestResolveAgainstBackground(t *testing.T) {
	cfg, set := testBackground(t)
	cfg.IDs = "SEQ001,SEQ003,UNKNOWN"

	res, err := Resolve(context.Background(), cfg, set)
	require.NoError(t, err)

	// UNKNOWN is dropped with a warning, not an error.
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.FoundInBackground)
	assert.Equal(t, 0, res.FromInputFasta)

	first := res.Rows[0]
	assert.Equal(t, "SEQ001", first["name"])
	assert.Equal(t, "True", first["query_boolean"])
	assert.Equal(t, "background", first["source"])
	assert.Equal(t, "B.1", first["lineage"])
}

func TestResolveWithInputFasta(t *testing.T) {
	cfg, set := testBackground(t)
	fastaPath := path.Join(t.TempDir(), "query.fasta")
	require.NoError(t, os.WriteFile(fastaPath, []byte(">NOVEL1\nACGTACGT\n>NOVEL2\nNNNNNNNA\n"), 0o644))

	cfg.IDs = "SEQ001,NOVEL1,NOVEL2"
	cfg.Fasta = fastaPath

	res, err := Resolve(context.Background(), cfg, set)
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, 1, res.FoundInBackground)
	assert.Equal(t, 2, res.FromInputFasta)

	byName := map[string]background.Row{}
	for _, r := range res.Rows {
		byName[r["name"]] = r
	}
	assert.Equal(t, "Pass", byName["NOVEL1"]["qc_status"])
	assert.Equal(t, "Fail", byName["NOVEL2"]["qc_status"])
	assert.Equal(t, "input_fasta", byName["NOVEL1"]["source"])

	// Only passing sequences are carried to the alignment stage.
	require.Len(t, res.PassedFasta, 1)
	assert.Equal(t, "NOVEL1", res.PassedFasta[0].Name)
}

func TestResolveFastaUnknownRecord(t *testing.T) {
	cfg, set := testBackground(t)
	fastaPath := path.Join(t.TempDir(), "query.fasta")
	require.NoError(t, os.WriteFile(fastaPath, []byte(">STRANGER\nACGT\n"), 0o644))

	cfg.IDs = "SEQ001"
	cfg.Fasta = fastaPath

	_, err := Resolve(context.Background(), cfg, set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRANGER")
}

func TestResolveFromMetadataSearch(t *testing.T) {
	cfg, set := testBackground(t)
	cfg.FromMetadata = []string{"sample_date=2020-03-01:2020-03-31"}

	res, err := Resolve(context.Background(), cfg, set)
	require.NoError(t, err)

	// Hits come back in background csv order, so repeated runs write
	// identical merged metadata.
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "SEQ001", res.Rows[0]["name"])
	assert.Equal(t, "SEQ002", res.Rows[1]["name"])
}

func TestResolveFromMetadataSearchOrderStable(t *testing.T) {
	cfg, set := testBackground(t)
	cfg.FromMetadata = []string{"sample_date=2020-01-01:2020-12-31"}

	res, err := Resolve(context.Background(), cfg, set)
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	names := []string{res.Rows[0]["name"], res.Rows[1]["name"], res.Rows[2]["name"]}
	assert.Equal(t, []string{"SEQ001", "SEQ002", "SEQ003"}, names)
}

func TestResolveNothingMatches(t *testing.T) {
	cfg, set := testBackground(t)
	cfg.IDs = "NOPE1,NOPE2"

	_, err := Resolve(context.Background(), cfg, set)
	require.Error(t, err)
}

func TestWriteOutputs(t *testing.T) {
	cfg, set := testBackground(t)
	cfg.IDs = "SEQ001"

	res, err := Resolve(context.Background(), cfg, set)
	require.NoError(t, err)

	dir := t.TempDir()
	metadataPath := path.Join(dir, "query_metadata.csv")
	require.NoError(t, WriteOutputs(res, metadataPath, path.Join(dir, "query.fasta")))

	data, err := os.ReadFile(metadataPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "query_boolean")
	assert.Contains(t, lines[1], "SEQ001")
}
