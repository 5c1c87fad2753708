package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmorganca/marlin/marlin"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644))
}

func TestLoaderFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"model_type": "llama",
		"quantization_config": {
			"bits": 4,
			"group_size": 128,
			"desc_act": true,
			"sym": true,
			"quant_method": "gptq"
		}
	}`)

	loader, err := loaderFromConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 4, loader.Bits)
	require.Equal(t, 128, loader.GroupSize)
	require.True(t, loader.DescAct)
	require.True(t, loader.Sym)
	require.Equal(t, marlin.GPTQ, loader.Method)
}

func TestLoaderFromConfigAWQ(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
		"quantization_config": {
			"bits": 4,
			"group_size": 64,
			"quant_method": "awq"
		}
	}`)

	loader, err := loaderFromConfig(dir)
	require.NoError(t, err)
	require.Equal(t, marlin.AWQ, loader.Method)
}

func TestLoaderFromConfigUnquantized(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"model_type": "llama"}`)

	_, err := loaderFromConfig(dir)
	require.Error(t, err)
}

func TestNewCLI(t *testing.T) {
	root := NewCLI()
	require.Equal(t, "marlin", root.Name())

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "inspect")
	require.Contains(t, names, "repack")
	require.Contains(t, names, "version")
}
