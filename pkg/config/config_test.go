package config

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "name", cfg.InputColumn)
	assert.Equal(t, 0.5, cfg.MaxAmbiguity)
	assert.Equal(t, 20000, cfg.MinLength)
	assert.Equal(t, "sequence_name", cfg.DataColumn)
	assert.Equal(t, "krait", cfg.OutputPrefix)
	assert.Equal(t, 265, cfg.TrimStart)
	assert.Equal(t, 29674, cfg.TrimEnd)
	assert.Equal(t, "12345", cfg.ReportContent)
	assert.Equal(t, "sample_date", cfg.DateColumn)
}

func TestLoadYAML(t *testing.T) {
	p := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
ids: EDB3588,EDB3589
min_length: 10000
report_content: "123"
location_column: adm2
table_content: [name, lineage]
`), 0o644))

	cfg := Default()
	require.NoError(t, cfg.LoadYAML(p))

	assert.Equal(t, "EDB3588,EDB3589", cfg.IDs)
	assert.Equal(t, 10000, cfg.MinLength)
	assert.Equal(t, "123", cfg.ReportContent)
	assert.Equal(t, "adm2", cfg.LocationColumn)
	assert.Equal(t, []string{"name", "lineage"}, cfg.TableContent)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.5, cfg.MaxAmbiguity)
}

func TestLoadYAMLUnknownKey(t *testing.T) {
	p := path.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("minlegnth: 10000\n"), 0o644))

	cfg := Default()
	err := cfg.LoadYAML(p)
	require.Error(t, err)
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid id string run",
			modify: func(c *Config) { c.IDs = "EDB3588" },
		},
		{
			name:    "no query source",
			modify:  func(c *Config) {},
			wantErr: "no query source",
		},
		{
			name: "two query sources",
			modify: func(c *Config) {
				c.IDs = "EDB3588"
				c.InputCSV = "input.csv"
			},
			wantErr: "multiple query sources",
		},
		{
			name: "bad ambiguity",
			modify: func(c *Config) {
				c.IDs = "EDB3588"
				c.MaxAmbiguity = 1.5
			},
			wantErr: "max ambiguity",
		},
		{
			name: "bad selector",
			modify: func(c *Config) {
				c.IDs = "EDB3588"
				c.ReportContent = "129"
			},
			wantErr: "report content selector",
		},
		{
			name: "bad trim window",
			modify: func(c *Config) {
				c.IDs = "EDB3588"
				c.TrimStart = 500
				c.TrimEnd = 100
			},
			wantErr: "trim window",
		},
		{
			name: "bad date",
			modify: func(c *Config) {
				c.IDs = "EDB3588"
				c.Date = "01/02/2020"
			},
			wantErr: "ISO format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			err := cfg.Finalize()
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestFinalizeFastaColumnDefault(t *testing.T) {
	cfg := Default()
	cfg.IDs = "EDB3588"
	cfg.DataColumn = "strain"
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "strain", cfg.FastaColumn)
}
