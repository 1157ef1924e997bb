package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, 1<<20, cfg.BudgetBytes())
	assert.Contains(t, cfg.SupportedExtensions, ".jpg")
	assert.Contains(t, cfg.SupportedExtensions, ".webp")
	assert.Equal(t, "_reduced", cfg.Processing.OutputSuffix)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "zero max size",
			mutate: func(c *Config) { c.MaxFileSizeMB = 0 },
		},
		{
			name:   "negative max size",
			mutate: func(c *Config) { c.MaxFileSizeMB = -2 },
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
		},
		{
			name:   "bad web port",
			mutate: func(c *Config) { c.Web.Port = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNormalizesExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SupportedExtensions = []string{"JPG", "png", ".WebP"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{".jpg", ".png", ".webp"}, cfg.SupportedExtensions)

	assert.True(t, cfg.IsSupportedExtension(".JPG"))
	assert.True(t, cfg.IsSupportedExtension(".png"))
	assert.False(t, cfg.IsSupportedExtension(".txt"))
}

func TestBudgetBytes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSizeMB = 2.5
	assert.EqualValues(t, 2621440, cfg.BudgetBytes())
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SupportedExtensions = nil
	cfg.Processing.OutputSuffix = ""
	cfg.Web.FileTTLMinutes = 0

	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.SupportedExtensions)
	assert.Equal(t, "_reduced", cfg.Processing.OutputSuffix)
	assert.Equal(t, 60, cfg.Web.FileTTLMinutes)
}
