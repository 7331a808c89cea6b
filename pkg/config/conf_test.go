package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/wilson/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "wilson")

	c1, err := ReadOrCreate(testDir)
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, Default(), c1)

	c1.Confidence = 0.95
	c1.Method = "wilson"
	c1.Columns.Positive = "up"
	c1.Columns.Negative = "down"
	c1.Columns.Output = "rank"

	err = Save(testDir, c1)
	assert.NoError(t, err)

	c2, err := ReadOrCreate(testDir)
	assert.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestConfig_Calculator(t *testing.T) {
	c := Default()
	calc, err := c.Calculator()
	require.NoError(t, err)
	assert.Same(t, score.Compat, calc)

	c.Confidence = 0.99
	c.Method = "wilson"
	calc, err = c.Calculator()
	require.NoError(t, err)
	assert.Equal(t, score.MethodWilson, calc.Method())
	assert.Equal(t, 0.99, calc.Confidence())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence zero", func(c *Config) { c.Confidence = 0 }},
		{"confidence one", func(c *Config) { c.Confidence = 1 }},
		{"unknown method", func(c *Config) { c.Method = "agresti" }},
		{"unknown level", func(c *Config) { c.LogLevel = "trace" }},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), score.ErrInvalidArgument)
			assert.Error(t, Save(t.TempDir(), c))
		})
	}
}

func TestReadOrCreate_Invalid(t *testing.T) {
	_, err := ReadOrCreate("")
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("confidence: 2\n"), fileMode))
	_, err = ReadOrCreate(dir)
	assert.ErrorIs(t, err, score.ErrInvalidArgument)

	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("confidence: [\n"), fileMode))
	_, err = ReadOrCreate(dir)
	assert.Error(t, err)
}

func TestSave_Errors(t *testing.T) {
	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(t.TempDir(), nil))
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("wilson")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".wilson", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".wilson")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
