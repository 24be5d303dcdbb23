package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PANTRY_LOG_LEVEL", "")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	full := append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatCommand(t *testing.T) {
	out, err := run(t, "format", "1500", "g")
	require.NoError(t, err)
	assert.Equal(t, "1.5 kg\n", out)

	_, err = run(t, "format", "lots", "g")
	assert.Error(t, err)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "frozen peas")
	require.NoError(t, err)
	assert.Contains(t, out, "freezer")

	_, err = run(t, "classify", "milk", "--category", "candy")
	assert.Error(t, err)
}
